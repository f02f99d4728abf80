// Package idmap records which destination entity was created for each source entity during a run.
package idmap

import (
	"fmt"
	"sync"

	"github.com/samber/mo"

	"guildcloner/core"
	"guildcloner/models"
)

type IdentifierMap struct {
	mu      sync.RWMutex
	forward map[models.EntityKind]map[string]string
	reverse map[models.EntityKind]map[string]string
}

func New() *IdentifierMap {
	return &IdentifierMap{
		forward: make(map[models.EntityKind]map[string]string),
		reverse: make(map[models.EntityKind]map[string]string),
	}
}

// Map records sourceID -> destinationID. Each source id may be mapped once per kind;
// a second attempt returns core.ErrAlreadyMapped and leaves the first mapping in place.
func (m *IdentifierMap) Map(kind models.EntityKind, sourceID, destinationID string) error {
	if sourceID == "" || destinationID == "" {
		return fmt.Errorf("cannot map empty %s id (source=%q destination=%q)", kind, sourceID, destinationID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.forward[kind][sourceID]; ok {
		return fmt.Errorf("%s %s already mapped to %s: %w", kind, sourceID, existing, core.ErrAlreadyMapped)
	}
	if m.forward[kind] == nil {
		m.forward[kind] = make(map[string]string)
		m.reverse[kind] = make(map[string]string)
	}
	m.forward[kind][sourceID] = destinationID
	m.reverse[kind][destinationID] = sourceID
	return nil
}

func (m *IdentifierMap) Lookup(kind models.EntityKind, sourceID string) mo.Option[string] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.forward[kind][sourceID]; ok {
		return mo.Some(id)
	}
	return mo.None[string]()
}

// Source returns the source id a destination id was created from.
func (m *IdentifierMap) Source(kind models.EntityKind, destinationID string) mo.Option[string] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.reverse[kind][destinationID]; ok {
		return mo.Some(id)
	}
	return mo.None[string]()
}

func (m *IdentifierMap) Len(kind models.EntityKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.forward[kind])
}

// Entries returns a copy of the mappings of one kind.
func (m *IdentifierMap) Entries(kind models.EntityKind) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.forward[kind]))
	for k, v := range m.forward[kind] {
		out[k] = v
	}
	return out
}

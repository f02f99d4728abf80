// Package stats tracks the counters and progress of a single clone run.
package stats

import (
	"sync"
	"time"

	"guildcloner/models"
)

// Tracker owns the run counters. Readers only ever see copies via Snapshot.
type Tracker struct {
	mu sync.Mutex

	stats      models.CloneStats
	startedAt  time.Time
	finishedAt time.Time

	plannedUnits int
	doneUnits    int

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Start marks the beginning of wall-clock accounting.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = t.now()
	t.finishedAt = time.Time{}
}

// Stop freezes the elapsed time.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.startedAt.IsZero() && t.finishedAt.IsZero() {
		t.finishedAt = t.now()
	}
}

func (t *Tracker) AddTotals(roles, categories, channels int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TotalRoles += roles
	t.stats.TotalCategories += categories
	t.stats.TotalChannels += channels
}

func (t *Tracker) AddPlanned(units int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.plannedUnits += units
}

// ShrinkPlanned removes work that turned out not to exist, e.g. a channel with
// shorter history than the message limit.
func (t *Tracker) ShrinkPlanned(units int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.plannedUnits = max(t.doneUnits, t.plannedUnits-units)
}

// UnitDone advances progress by one unit regardless of whether the unit succeeded.
func (t *Tracker) UnitDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.doneUnits++
}

func (t *Tracker) RoleCreated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.RolesCreated++
}

func (t *Tracker) CategoryCreated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CategoriesCreated++
}

func (t *Tracker) ChannelCreated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.ChannelsCreated++
}

func (t *Tracker) OverwriteApplied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.OverwritesApplied++
}

func (t *Tracker) MessageCopied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.MessagesCopied++
}

// RecordError counts one failed call. It is shaped to be passed as the client error hook.
func (t *Tracker) RecordError(error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Errors++
}

// Progress returns completed over planned units, capped at 1.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.plannedUnits <= 0 {
		return 0
	}
	return min(1.0, float64(t.doneUnits)/float64(t.plannedUnits))
}

func (t *Tracker) Snapshot() models.CloneStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.stats
	switch {
	case t.startedAt.IsZero():
		snapshot.ElapsedTime = 0
	case !t.finishedAt.IsZero():
		snapshot.ElapsedTime = t.finishedAt.Sub(t.startedAt)
	default:
		snapshot.ElapsedTime = t.now().Sub(t.startedAt)
	}
	return snapshot
}

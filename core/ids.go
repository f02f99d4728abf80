package core

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"guildcloner/utils"
)

const RunIDPrefix = "run"

// NewID returns prefix_ULID, e.g. "run_01G0EZ1XTM37C5X11SQTDNCTM1".
func NewID(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	utils.AssertInvariant(prefix != "", "prefix cannot be empty")

	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "_" + id.String()
}

func NewRunID() string {
	return NewID(RunIDPrefix)
}

// ParseID splits a prefix_ULID id. The prefix must be lowercase alphanumeric.
func ParseID(id string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(id, "_")
	if !ok || prefix == "" || strings.Contains(raw, "_") {
		return "", ulid.ULID{}, fmt.Errorf("id %q is not in prefix_ULID form", id)
	}
	for _, r := range prefix {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", ulid.ULID{}, fmt.Errorf("id %q has an invalid prefix", id)
		}
	}
	parsed, err := ulid.ParseStrict(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q has an invalid ULID: %w", id, err)
	}
	return prefix, parsed, nil
}

func IsValidULID(id string) bool {
	_, _, err := ParseID(id)
	return err == nil
}

// IsValidRunID reports whether id was produced by NewRunID.
func IsValidRunID(id string) bool {
	prefix, _, err := ParseID(id)
	return err == nil && prefix == RunIDPrefix
}

// IDTime returns the creation time embedded in an id.
func IDTime(id string) (time.Time, error) {
	_, parsed, err := ParseID(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// DateCursor is one progress ledger entry: as of ObservedAt, Date has been
// harvested up to Offset, and Completed reports whether the date is exhausted.
// Entries are immutable; a later entry for the same date supersedes an
// earlier one according to the ledger's resolution rule.
type DateCursor struct {
	Date       time.Time `json:"date" yaml:"date"`
	Offset     int64     `json:"offset" yaml:"offset"`
	Completed  bool      `json:"completed" yaml:"completed"`
	ObservedAt time.Time `json:"observed_at" yaml:"observed_at"`
	RunID      uuid.UUID `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// Supersedes reports whether c wins over other when both describe the same
// date: a completed entry beats an incomplete one regardless of age, and
// among equal completion status the most recent wins.
func (c DateCursor) Supersedes(other DateCursor) bool {
	if c.Completed != other.Completed {
		return c.Completed
	}
	return c.ObservedAt.After(other.ObservedAt)
}

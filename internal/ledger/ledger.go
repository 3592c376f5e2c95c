// Package ledger implements the append-only progress ledger. Progress for a
// date is never updated in place: every checkpoint appends a new DateCursor
// and readers resolve the effective state with a completion-first,
// newest-second rule.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/search-harvest/internal/model"
)

// Ledger is the durable progress store used by the orchestrator.
type Ledger interface {
	// Append writes a new entry unconditionally.
	Append(ctx context.Context, c model.DateCursor) error
	// EffectiveStateFor resolves the effective entry for date. The boolean is
	// false when the date has no entries.
	EffectiveStateFor(ctx context.Context, date time.Time) (model.DateCursor, bool, error)
	// EffectiveStates resolves the effective entry for each date that has one.
	EffectiveStates(ctx context.Context, dates []time.Time) (map[time.Time]model.DateCursor, error)
	// OutstandingDates filters candidates to dates that are absent or incomplete.
	OutstandingDates(ctx context.Context, candidates []time.Time) ([]time.Time, error)
	// Prune removes entries older than olderThan that no longer matter.
	Prune(ctx context.Context, olderThan time.Duration) (PruneResult, error)
	// Empty reports whether the ledger holds no entries at all.
	Empty(ctx context.Context) (bool, error)
	// History returns every entry for date, oldest first.
	History(ctx context.Context, date time.Time) ([]model.DateCursor, error)
}

// PruneResult reports what a prune did. Deferred is set when the store
// rejected the delete because a matched row was inside the write-visibility
// window; nothing was deleted in that case.
type PruneResult struct {
	Deleted  int64 `json:"deleted" yaml:"deleted"`
	Deferred bool  `json:"deferred" yaml:"deferred"`
}

// Resolve returns the effective entry among entries for a single date.
func Resolve(entries []model.DateCursor) (model.DateCursor, bool) {
	if len(entries) == 0 {
		return model.DateCursor{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Supersedes(best) {
			best = e
		}
	}
	return best, true
}

// Effective groups entries by day and resolves each group.
func Effective(entries []model.DateCursor) map[time.Time]model.DateCursor {
	out := make(map[time.Time]model.DateCursor)
	for _, e := range entries {
		day := model.Day(e.Date)
		cur, ok := out[day]
		if !ok || e.Supersedes(cur) {
			e.Date = day
			out[day] = e
		}
	}
	return out
}

// Outstanding keeps the candidates, in order, whose effective state is
// absent or incomplete.
func Outstanding(candidates []time.Time, effective map[time.Time]model.DateCursor) []time.Time {
	out := make([]time.Time, 0, len(candidates))
	for _, d := range candidates {
		if c, ok := effective[model.Day(d)]; ok && c.Completed {
			continue
		}
		out = append(out, model.Day(d))
	}
	return out
}

// sortedDays returns the distinct normalized days in dates, ascending.
func sortedDays(dates []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := model.Day(d)
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

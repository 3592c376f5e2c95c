package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/ledger"
	"github.com/sells-group/search-harvest/internal/model"
)

// Mode selects the candidate date window.
type Mode string

// Harvest modes.
const (
	ModeBackfill    Mode = "backfill"
	ModeIncremental Mode = "incremental"
	// ModeAuto backfills when the ledger is empty and runs incrementally
	// otherwise.
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBackfill, ModeIncremental, ModeAuto:
		return m, nil
	default:
		return "", eris.Errorf("pipeline: unknown mode %q (want backfill, incremental or auto)", s)
	}
}

// PlanConfig controls candidate date enumeration.
type PlanConfig struct {
	BackfillDays    int
	IncrementalDays int
	EmbargoDays     int
	Location        *time.Location
}

// CandidateDates returns the trailing window for mode, newest first, ending
// EmbargoDays before now's calendar date in Location.
func CandidateDates(mode Mode, now time.Time, cfg PlanConfig) []time.Time {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	end := model.Day(now.In(loc)).AddDate(0, 0, -cfg.EmbargoDays)

	days := cfg.IncrementalDays
	if mode == ModeBackfill {
		days = cfg.BackfillDays
	}
	return model.TrailingDays(end, days)
}

// resolveMode turns ModeAuto into a concrete mode. An unreadable ledger
// falls back to incremental, the smaller window.
func resolveMode(ctx context.Context, l ledger.Ledger, mode Mode) Mode {
	if mode != ModeAuto {
		return mode
	}
	empty, err := l.Empty(ctx)
	if err != nil {
		zap.L().Warn("pipeline: ledger emptiness check failed, assuming incremental",
			zap.String("component", "pipeline"), zap.Error(err))
		return ModeIncremental
	}
	if empty {
		return ModeBackfill
	}
	return ModeIncremental
}

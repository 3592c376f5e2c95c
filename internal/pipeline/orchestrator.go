// Package pipeline drives the resumable fetch, aggregate, write and
// checkpoint loop over candidate dates under a per-run call budget.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/aggregate"
	"github.com/sells-group/search-harvest/internal/ledger"
	"github.com/sells-group/search-harvest/internal/model"
	"github.com/sells-group/search-harvest/internal/resilience"
	"github.com/sells-group/search-harvest/internal/source"
)

// Source fetches one page of raw rows for a date.
type Source interface {
	FetchPage(ctx context.Context, date time.Time, offset int64, pageSize int) (*source.Page, error)
}

// BatchWriter persists the aggregated rows of one page.
type BatchWriter interface {
	WriteBatch(ctx context.Context, date time.Time, rows []model.AggregatedRecord) error
}

// Config controls one harvest invocation.
type Config struct {
	Mode             Mode
	Plan             PlanConfig
	Budget           int
	PageSize         int
	BreakerThreshold int
	Prune            bool
	Retention        time.Duration
}

// errBudgetExhausted stops a date loop when no calls remain.
var errBudgetExhausted = errors.New("pipeline: call budget exhausted")

// Orchestrator runs the per-date state machine. Dates and pages are
// processed strictly sequentially.
type Orchestrator struct {
	src     Source
	writer  BatchWriter
	ledger  ledger.Ledger
	cfg     Config
	runID   uuid.UUID
	nowFunc func() time.Time
	log     *zap.Logger
}

// New creates an Orchestrator. runID is stamped on every ledger entry.
func New(src Source, writer BatchWriter, l ledger.Ledger, cfg Config, runID uuid.UUID) *Orchestrator {
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	return &Orchestrator{
		src:     src,
		writer:  writer,
		ledger:  l,
		cfg:     cfg,
		runID:   runID,
		nowFunc: time.Now,
		log: zap.L().With(
			zap.String("component", "pipeline"),
			zap.String("run_id", runID.String()),
		),
	}
}

// Run executes one invocation. Per-date failures are recorded in the
// summary, not returned. The error is non-nil only when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := o.nowFunc()
	sum := &Summary{
		RunID:     o.runID,
		State:     StateRunning,
		StartedAt: start.UTC(),
		Budget:    o.cfg.Budget,
	}
	defer func() { sum.Elapsed = time.Since(start) }()

	if o.cfg.Prune {
		o.prune(ctx, sum)
	}

	sum.Mode = resolveMode(ctx, o.ledger, o.cfg.Mode)
	candidates := CandidateDates(sum.Mode, start, o.cfg.Plan)
	o.log.Info("harvest starting",
		zap.String("mode", string(sum.Mode)),
		zap.Int("candidates", len(candidates)),
		zap.Int("budget", o.cfg.Budget),
	)

	work, offsets := o.plan(ctx, candidates, sum)

	budget := NewBudget(o.cfg.Budget)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: o.cfg.BreakerThreshold,
		ShouldTrip: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	})

	exhausted := false
	for i, date := range work {
		if err := ctx.Err(); err != nil {
			markPending(sum, work[i:], offsets)
			sum.State = StateError
			sum.StoppedBy = "cancelled"
			sum.CallsUsed = budget.Used()
			return sum, eris.Wrap(err, "pipeline: run cancelled")
		}
		if exhausted || budget.Remaining() == 0 {
			exhausted = true
			markPending(sum, work[i:], offsets)
			break
		}
		if breaker.Allow() != nil {
			sum.StoppedBy = "circuit_open"
			o.log.Error("too many consecutive failed dates, stopping run",
				zap.Int("threshold", o.cfg.BreakerThreshold),
				zap.Int("remaining_dates", len(work)-i),
			)
			markPending(sum, work[i:], offsets)
			break
		}

		res, err := o.processDate(ctx, date, offsets[date], budget)
		switch {
		case errors.Is(err, errBudgetExhausted):
			exhausted = true
		case err == nil:
			breaker.Record(nil)
		default:
			breaker.Record(err)
			res.Status = DateFailed
			res.Error = err.Error()
			res.ErrorKind = resilience.Kind(err)
			o.log.Error("date failed",
				zap.String("date", model.FormatDay(date)),
				zap.Int64("offset", res.Offset),
				zap.Int("calls_used", budget.Used()),
				zap.String("kind", res.ErrorKind),
				zap.Error(err),
			)
		}
		sum.Dates = append(sum.Dates, res)
	}

	sum.CallsUsed = budget.Used()
	switch {
	case sum.StoppedBy != "" || sum.Count(DateFailed) > 0:
		sum.State = StateError
	case exhausted:
		sum.State = StateExhausted
		sum.StoppedBy = "budget"
	default:
		sum.State = StateDone
	}

	o.log.Info("harvest finished",
		zap.String("state", string(sum.State)),
		zap.Int("calls_used", sum.CallsUsed),
		zap.Int("completed", sum.Count(DateCompleted)),
		zap.Int("failed", sum.Count(DateFailed)),
		zap.Int("pending", sum.Count(DatePending)+sum.Count(DatePartial)),
		zap.Int64("records", sum.TotalRecords()),
	)
	return sum, nil
}

// plan filters candidates to outstanding dates and looks up their resume
// offsets. Skipped dates are recorded in sum. If the ledger cannot be read
// the run falls back to the most recent candidate at offset 0.
func (o *Orchestrator) plan(ctx context.Context, candidates []time.Time, sum *Summary) ([]time.Time, map[time.Time]int64) {
	offsets := make(map[time.Time]int64)
	if len(candidates) == 0 {
		return nil, offsets
	}

	fallback := func(err error) ([]time.Time, map[time.Time]int64) {
		o.log.Warn("ledger unavailable, falling back to most recent date at offset 0",
			zap.String("date", model.FormatDay(candidates[0])),
			zap.Error(err),
		)
		sum.Fallback = true
		return candidates[:1], map[time.Time]int64{candidates[0]: 0}
	}

	work, err := o.ledger.OutstandingDates(ctx, candidates)
	if err != nil {
		return fallback(err)
	}

	states, err := o.ledger.EffectiveStates(ctx, work)
	if err != nil {
		return fallback(err)
	}
	for _, d := range work {
		offsets[d] = states[d].Offset
	}

	outstanding := make(map[time.Time]bool, len(work))
	for _, d := range work {
		outstanding[d] = true
	}
	for _, d := range candidates {
		if !outstanding[d] {
			sum.Dates = append(sum.Dates, DateResult{Date: d, Status: DateSkipped})
		}
	}
	return work, offsets
}

// processDate runs the fetch, aggregate, write, checkpoint loop for one date
// until the date completes, the budget runs out, or a step fails. The
// in-memory offset only advances after a durable checkpoint.
func (o *Orchestrator) processDate(ctx context.Context, date time.Time, offset int64, budget *Budget) (DateResult, error) {
	res := DateResult{Date: date, Status: DatePending, StartOffset: offset, Offset: offset}
	log := o.log.With(zap.String("date", model.FormatDay(date)))
	log.Info("processing date", zap.Int64("offset", offset))

	for {
		if !budget.Take() {
			if res.Pages > 0 {
				res.Status = DatePartial
			}
			log.Info("call budget exhausted", zap.Int64("offset", res.Offset))
			return res, errBudgetExhausted
		}

		page, err := o.src.FetchPage(ctx, date, res.Offset, o.cfg.PageSize)
		if err != nil {
			return res, eris.Wrapf(err, "pipeline: fetch %s at %d", model.FormatDay(date), res.Offset)
		}
		res.Pages++
		res.Fetched += int64(len(page.Records))

		rows := aggregate.Records(page.Records)
		if len(rows) > 0 {
			if err := o.writer.WriteBatch(ctx, date, rows); err != nil {
				return res, eris.Wrapf(err, "pipeline: write %s at %d", model.FormatDay(date), res.Offset)
			}
		}

		completed := page.Last(o.cfg.PageSize)
		if err := o.ledger.Append(ctx, model.DateCursor{
			Date:       date,
			Offset:     page.NextOffset,
			Completed:  completed,
			ObservedAt: o.nowFunc().UTC(),
			RunID:      o.runID,
		}); err != nil {
			return res, eris.Wrapf(err, "pipeline: checkpoint %s at %d", model.FormatDay(date), page.NextOffset)
		}
		res.Offset = page.NextOffset
		res.Records += int64(len(rows))

		log.Debug("page checkpointed",
			zap.Int64("offset", res.Offset),
			zap.Int("raw_rows", len(page.Records)),
			zap.Int("aggregated_rows", len(rows)),
			zap.Bool("completed", completed),
		)
		if completed {
			res.Status = DateCompleted
			log.Info("date completed", zap.Int64("records", res.Records), zap.Int("pages", res.Pages))
			return res, nil
		}
	}
}

// prune runs ledger maintenance. Failures are logged only.
func (o *Orchestrator) prune(ctx context.Context, sum *Summary) {
	res, err := o.ledger.Prune(ctx, o.cfg.Retention)
	if err != nil {
		o.log.Warn("ledger prune failed", zap.Error(err))
		return
	}
	sum.Pruned = &res
}

func markPending(sum *Summary, dates []time.Time, offsets map[time.Time]int64) {
	for _, d := range dates {
		sum.Dates = append(sum.Dates, DateResult{
			Date:        d,
			Status:      DatePending,
			StartOffset: offsets[d],
			Offset:      offsets[d],
		})
	}
}

// Package warehouse persists aggregated search records. The Writer adds a
// bounded fixed-delay retry on top of a store-specific Inserter.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/model"
	"github.com/sells-group/search-harvest/internal/resilience"
)

// Inserter appends one batch of aggregated rows for date in a single attempt.
type Inserter interface {
	Insert(ctx context.Context, date time.Time, runID uuid.UUID, rows []model.AggregatedRecord) error
}

// Store is an Inserter with the diagnostic read side.
type Store interface {
	Inserter
	CountRows(ctx context.Context, date time.Time) (int64, error)
	Report(ctx context.Context, from, to time.Time) ([]model.ReportRow, error)
}

// WriterConfig configures the retry policy of a Writer.
type WriterConfig struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// DefaultWriterConfig returns five attempts ten seconds apart.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{MaxRetries: 5, RetryDelay: 10 * time.Second}
}

// InsertionError is the terminal error of a batch that failed every attempt.
// It matches resilience.ErrInsertionFailed and the last underlying error.
type InsertionError struct {
	Date     time.Time
	Attempts int
	Err      error
}

func (e *InsertionError) Error() string {
	return fmt.Sprintf("warehouse: insertion failed for %s after %d attempts: %v",
		model.FormatDay(e.Date), e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last attempt's error.
func (e *InsertionError) Unwrap() []error {
	return []error{resilience.ErrInsertionFailed, e.Err}
}

// Writer writes batches with retry. Every error is retried, including auth
// failures, since the store credential may refresh between attempts.
type Writer struct {
	ins    Inserter
	runID  uuid.UUID
	policy resilience.FixedPolicy
}

// NewWriter creates a Writer stamping rows with runID.
func NewWriter(ins Inserter, cfg WriterConfig, runID uuid.UUID) *Writer {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Writer{
		ins:   ins,
		runID: runID,
		policy: resilience.FixedPolicy{
			Attempts: cfg.MaxRetries,
			Delay:    cfg.RetryDelay,
			OnRetry:  resilience.RetryLogger("warehouse.write_batch", cfg.RetryDelay),
		},
	}
}

// WriteBatch persists rows for date. An empty batch is a no-op. When every
// attempt fails the returned error is an *InsertionError.
func (w *Writer) WriteBatch(ctx context.Context, date time.Time, rows []model.AggregatedRecord) error {
	if len(rows) == 0 {
		return nil
	}

	res := resilience.Retry(ctx, w.policy, func(ctx context.Context) error {
		return w.ins.Insert(ctx, date, w.runID, rows)
	})
	if res.OK() {
		if res.Attempts > 1 {
			zap.L().Info("batch written after retry",
				zap.String("component", "warehouse.writer"),
				zap.String("date", model.FormatDay(date)),
				zap.Int("attempts", res.Attempts),
				zap.Int("rows", len(rows)),
			)
		}
		return nil
	}
	return &InsertionError{Date: date, Attempts: res.Attempts, Err: res.Err}
}

package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/db"
	"github.com/sells-group/search-harvest/internal/model"
)

const (
	appendSQL = `INSERT INTO search_data.progress_ledger
		(data_date, record_position, is_date_completed, updated_at, run_id)
		VALUES ($1, $2, $3, $4, $5)`

	effectiveSQL = `SELECT DISTINCT ON (data_date)
			data_date, record_position, is_date_completed, updated_at, COALESCE(run_id::text, '')
		FROM search_data.progress_ledger
		WHERE data_date = ANY($1)
		ORDER BY data_date, is_date_completed DESC, updated_at DESC`

	historySQL = `SELECT data_date, record_position, is_date_completed, updated_at, COALESCE(run_id::text, '')
		FROM search_data.progress_ledger
		WHERE data_date = $1
		ORDER BY updated_at`

	emptySQL = `SELECT NOT EXISTS (SELECT 1 FROM search_data.progress_ledger)`

	pruneZeroOffsetSQL = `DELETE FROM search_data.progress_ledger
		WHERE record_position = 0 AND updated_at < $1`

	pruneSupersededSQL = `DELETE FROM search_data.progress_ledger AS t
		WHERE t.updated_at < $1
		  AND t.updated_at < (
			SELECT max(o.updated_at)
			FROM search_data.progress_ledger AS o
			WHERE o.data_date = t.data_date AND o.updated_at < $1
		  )`
)

// PostgresLedger stores the ledger in search_data.progress_ledger.
type PostgresLedger struct {
	pool    db.Pool
	nowFunc func() time.Time
	log     *zap.Logger
}

var _ Ledger = (*PostgresLedger)(nil)

// NewPostgres creates a ledger backed by pool.
func NewPostgres(pool db.Pool) *PostgresLedger {
	return &PostgresLedger{
		pool:    pool,
		nowFunc: time.Now,
		log:     zap.L().With(zap.String("component", "ledger.postgres")),
	}
}

// Append inserts c as a new ledger row.
func (l *PostgresLedger) Append(ctx context.Context, c model.DateCursor) error {
	var runID any
	if c.RunID != uuid.Nil {
		runID = c.RunID
	}
	observed := c.ObservedAt
	if observed.IsZero() {
		observed = l.nowFunc()
	}
	if _, err := l.pool.Exec(ctx, appendSQL,
		model.Day(c.Date), c.Offset, c.Completed, observed.UTC(), runID,
	); err != nil {
		return eris.Wrapf(err, "ledger: append %s", model.FormatDay(c.Date))
	}
	l.log.Debug("checkpoint appended",
		zap.String("date", model.FormatDay(c.Date)),
		zap.Int64("offset", c.Offset),
		zap.Bool("completed", c.Completed),
	)
	return nil
}

// EffectiveStateFor resolves the effective entry for date.
func (l *PostgresLedger) EffectiveStateFor(ctx context.Context, date time.Time) (model.DateCursor, bool, error) {
	states, err := l.EffectiveStates(ctx, []time.Time{date})
	if err != nil {
		return model.DateCursor{}, false, err
	}
	c, ok := states[model.Day(date)]
	return c, ok, nil
}

// EffectiveStates resolves every date in one DISTINCT ON query.
func (l *PostgresLedger) EffectiveStates(ctx context.Context, dates []time.Time) (map[time.Time]model.DateCursor, error) {
	out := make(map[time.Time]model.DateCursor, len(dates))
	if len(dates) == 0 {
		return out, nil
	}

	rows, err := l.pool.Query(ctx, effectiveSQL, sortedDays(dates))
	if err != nil {
		return nil, eris.Wrap(err, "ledger: query effective states")
	}
	cursors, err := scanCursors(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range cursors {
		out[c.Date] = c
	}
	return out, nil
}

// OutstandingDates filters candidates to absent or incomplete dates,
// preserving candidate order.
func (l *PostgresLedger) OutstandingDates(ctx context.Context, candidates []time.Time) ([]time.Time, error) {
	states, err := l.EffectiveStates(ctx, candidates)
	if err != nil {
		return nil, err
	}
	return Outstanding(candidates, states), nil
}

// History returns every entry recorded for date, oldest first.
func (l *PostgresLedger) History(ctx context.Context, date time.Time) ([]model.DateCursor, error) {
	rows, err := l.pool.Query(ctx, historySQL, model.Day(date))
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: query history %s", model.FormatDay(date))
	}
	return scanCursors(rows)
}

// Empty reports whether no entry has ever been appended.
func (l *PostgresLedger) Empty(ctx context.Context) (bool, error) {
	var empty bool
	if err := l.pool.QueryRow(ctx, emptySQL).Scan(&empty); err != nil {
		return false, eris.Wrap(err, "ledger: check empty")
	}
	return empty, nil
}

// Prune deletes stale entries observed before now-olderThan in a single
// transaction. A visibility-window rejection rolls the whole prune back and
// is reported as Deferred rather than as an error.
func (l *PostgresLedger) Prune(ctx context.Context, olderThan time.Duration) (PruneResult, error) {
	cutoff := l.nowFunc().Add(-olderThan).UTC()
	log := l.log.With(zap.Time("cutoff", cutoff))

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return PruneResult{}, eris.Wrap(err, "ledger: begin prune")
	}

	var res PruneResult
	for _, stmt := range []string{pruneZeroOffsetSQL, pruneSupersededSQL} {
		tag, err := tx.Exec(ctx, stmt, cutoff)
		if err != nil {
			_ = tx.Rollback(ctx)
			if db.IsVisibilityConflict(err) {
				log.Info("prune deferred: rows still inside the write-visibility window", zap.Error(err))
				return PruneResult{Deferred: true}, nil
			}
			return PruneResult{}, eris.Wrap(err, "ledger: prune")
		}
		res.Deleted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsVisibilityConflict(err) {
			log.Info("prune deferred at commit", zap.Error(err))
			return PruneResult{Deferred: true}, nil
		}
		return PruneResult{}, eris.Wrap(err, "ledger: commit prune")
	}

	log.Info("ledger pruned", zap.Int64("deleted", res.Deleted))
	return res, nil
}

func scanCursors(rows pgx.Rows) ([]model.DateCursor, error) {
	defer rows.Close()

	var out []model.DateCursor
	for rows.Next() {
		var (
			c     model.DateCursor
			runID string
		)
		if err := rows.Scan(&c.Date, &c.Offset, &c.Completed, &c.ObservedAt, &runID); err != nil {
			return nil, eris.Wrap(err, "ledger: scan entry")
		}
		c.Date = model.Day(c.Date)
		if runID != "" {
			id, err := uuid.Parse(runID)
			if err != nil {
				return nil, eris.Wrapf(err, "ledger: parse run id %q", runID)
			}
			c.RunID = id
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "ledger: iterate entries")
	}
	return out, nil
}

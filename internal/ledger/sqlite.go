package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/db"
	"github.com/sells-group/search-harvest/internal/model"
)

// SQLiteLedger stores the ledger in a local SQLite database. Effective
// states are resolved in Go with Resolve.
type SQLiteLedger struct {
	db      *sql.DB
	nowFunc func() time.Time
	log     *zap.Logger
}

var _ Ledger = (*SQLiteLedger)(nil)

// NewSQLite creates a ledger on an opened and migrated SQLite database.
func NewSQLite(sqlDB *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{
		db:      sqlDB,
		nowFunc: time.Now,
		log:     zap.L().With(zap.String("component", "ledger.sqlite")),
	}
}

// Append inserts c as a new ledger row.
func (l *SQLiteLedger) Append(ctx context.Context, c model.DateCursor) error {
	observed := c.ObservedAt
	if observed.IsZero() {
		observed = l.nowFunc()
	}
	var runID any
	if c.RunID != uuid.Nil {
		runID = c.RunID.String()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO progress_ledger (data_date, record_position, is_date_completed, updated_at, run_id) VALUES (?, ?, ?, ?, ?)`,
		model.FormatDay(c.Date), c.Offset, c.Completed, observed.UTC().Format(db.SQLiteTimeLayout), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: append %s", model.FormatDay(c.Date))
	}
	return nil
}

// EffectiveStateFor resolves the effective entry for date.
func (l *SQLiteLedger) EffectiveStateFor(ctx context.Context, date time.Time) (model.DateCursor, bool, error) {
	entries, err := l.History(ctx, date)
	if err != nil {
		return model.DateCursor{}, false, err
	}
	c, ok := Resolve(entries)
	return c, ok, nil
}

// EffectiveStates resolves the effective entry for each date.
func (l *SQLiteLedger) EffectiveStates(ctx context.Context, dates []time.Time) (map[time.Time]model.DateCursor, error) {
	days := sortedDays(dates)
	if len(days) == 0 {
		return map[time.Time]model.DateCursor{}, nil
	}

	args := make([]any, len(days))
	for i, d := range days {
		args[i] = model.FormatDay(d)
	}
	q := `SELECT data_date, record_position, is_date_completed, updated_at, COALESCE(run_id, '')
		FROM progress_ledger WHERE data_date IN (?` + strings.Repeat(", ?", len(days)-1) + `)`

	entries, err := l.query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: query effective states")
	}
	return Effective(entries), nil
}

// OutstandingDates filters candidates to absent or incomplete dates.
func (l *SQLiteLedger) OutstandingDates(ctx context.Context, candidates []time.Time) ([]time.Time, error) {
	states, err := l.EffectiveStates(ctx, candidates)
	if err != nil {
		return nil, err
	}
	return Outstanding(candidates, states), nil
}

// History returns every entry recorded for date, oldest first.
func (l *SQLiteLedger) History(ctx context.Context, date time.Time) ([]model.DateCursor, error) {
	entries, err := l.query(ctx,
		`SELECT data_date, record_position, is_date_completed, updated_at, COALESCE(run_id, '')
		FROM progress_ledger WHERE data_date = ? ORDER BY updated_at, rowid`,
		model.FormatDay(date),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: query history %s", model.FormatDay(date))
	}
	return entries, nil
}

// Empty reports whether no entry has ever been appended.
func (l *SQLiteLedger) Empty(ctx context.Context) (bool, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT count(*) FROM (SELECT 1 FROM progress_ledger LIMIT 1)`).Scan(&n); err != nil {
		return false, eris.Wrap(err, "ledger: check empty")
	}
	return n == 0, nil
}

// Prune deletes stale entries in one transaction; see PostgresLedger.Prune.
func (l *SQLiteLedger) Prune(ctx context.Context, olderThan time.Duration) (PruneResult, error) {
	cutoff := l.nowFunc().Add(-olderThan).UTC().Format(db.SQLiteTimeLayout)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return PruneResult{}, eris.Wrap(err, "ledger: begin prune")
	}

	var res PruneResult
	for _, stmt := range []string{
		`DELETE FROM progress_ledger WHERE record_position = 0 AND updated_at < ?1`,
		`DELETE FROM progress_ledger
		WHERE updated_at < ?1
		  AND updated_at < (
			SELECT max(o.updated_at) FROM progress_ledger AS o
			WHERE o.data_date = progress_ledger.data_date AND o.updated_at < ?1
		  )`,
	} {
		r, err := tx.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			_ = tx.Rollback()
			if db.IsVisibilityConflict(err) {
				l.log.Info("prune deferred: rows still inside the write-visibility window", zap.Error(err))
				return PruneResult{Deferred: true}, nil
			}
			return PruneResult{}, eris.Wrap(err, "ledger: prune")
		}
		n, _ := r.RowsAffected()
		res.Deleted += n
	}

	if err := tx.Commit(); err != nil {
		return PruneResult{}, eris.Wrap(err, "ledger: commit prune")
	}
	l.log.Info("ledger pruned", zap.Int64("deleted", res.Deleted))
	return res, nil
}

func (l *SQLiteLedger) query(ctx context.Context, q string, args ...any) ([]model.DateCursor, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DateCursor
	for rows.Next() {
		var (
			c              model.DateCursor
			date, observed string
			runID          string
		)
		if err := rows.Scan(&date, &c.Offset, &c.Completed, &observed, &runID); err != nil {
			return nil, err
		}
		if c.Date, err = model.ParseDay(date); err != nil {
			return nil, err
		}
		if c.ObservedAt, err = time.Parse(db.SQLiteTimeLayout, observed); err != nil {
			return nil, err
		}
		if runID != "" {
			if c.RunID, err = uuid.Parse(runID); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

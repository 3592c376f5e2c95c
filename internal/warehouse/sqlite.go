package warehouse

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/search-harvest/internal/db"
	"github.com/sells-group/search-harvest/internal/model"
)

// SQLiteStore writes to and reads from the local search_records table.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite creates a warehouse store on an opened and migrated database.
func NewSQLite(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqlDB, nowFunc: time.Now}
}

// Insert writes rows in one transaction.
func (s *SQLiteStore) Insert(ctx context.Context, date time.Time, runID uuid.UUID, rows []model.AggregatedRecord) error {
	day := model.FormatDay(date)
	insertedAt := s.nowFunc().UTC().Format(db.SQLiteTimeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "warehouse: begin insert")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO search_records (data_date, url, query, impressions, clicks, avg_position, run_id, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return eris.Wrap(err, "warehouse: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, day, r.URL, r.Query, r.Impressions, r.Clicks, r.AvgPosition, runID.String(), insertedAt); err != nil {
			_ = tx.Rollback()
			return eris.Wrapf(err, "warehouse: insert %s", day)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "warehouse: commit %s", day)
	}
	return nil
}

// CountRows returns the number of stored rows for date.
func (s *SQLiteStore) CountRows(ctx context.Context, date time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM search_records WHERE data_date = ?`, model.FormatDay(date),
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "warehouse: count rows %s", model.FormatDay(date))
	}
	return n, nil
}

// Report re-aggregates stored rows per (query, url); see PostgresStore.Report.
func (s *SQLiteStore) Report(ctx context.Context, from, to time.Time) ([]model.ReportRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT query, url,
			sum(clicks), sum(impressions),
			CASE WHEN sum(impressions) > 0
				THEN sum(avg_position * impressions) / sum(impressions)
				ELSE avg(avg_position) END,
			count(*)
		FROM search_records
		WHERE data_date BETWEEN ? AND ?
		GROUP BY query, url
		ORDER BY sum(clicks) DESC, sum(impressions) DESC, query, url`,
		model.FormatDay(from), model.FormatDay(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query report")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ReportRow
	for rows.Next() {
		var r model.ReportRow
		if err := rows.Scan(&r.Query, &r.URL, &r.Clicks, &r.Impressions, &r.AvgPosition, &r.Rows); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan report row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "warehouse: iterate report")
	}
	return out, nil
}

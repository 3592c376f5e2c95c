package warehouse

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/search-harvest/internal/db"
	"github.com/sells-group/search-harvest/internal/model"
)

var recordColumns = []string{
	"data_date", "url", "query", "impressions", "clicks", "avg_position", "run_id", "inserted_at",
}

const (
	countRowsSQL = `SELECT count(*) FROM search_data.search_records WHERE data_date = $1`

	reportSQL = `SELECT query, url,
			sum(clicks), sum(impressions),
			CASE WHEN sum(impressions) > 0
				THEN sum(avg_position * impressions) / sum(impressions)
				ELSE avg(avg_position) END,
			count(*)
		FROM search_data.search_records
		WHERE data_date BETWEEN $1 AND $2
		GROUP BY query, url
		ORDER BY sum(clicks) DESC, sum(impressions) DESC, query, url`
)

// PostgresStore writes to and reads from search_data.search_records.
type PostgresStore struct {
	pool       db.Pool
	nowFunc    func() time.Time
	partitions sync.Map
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a warehouse store backed by pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, nowFunc: time.Now}
}

// Insert copies rows into the month partition holding date. A short copy is
// reported as a partial insertion error.
func (s *PostgresStore) Insert(ctx context.Context, date time.Time, runID uuid.UUID, rows []model.AggregatedRecord) error {
	day := model.Day(date)
	month := db.MonthPartitionName(day)
	if _, ok := s.partitions.Load(month); !ok {
		if _, err := db.EnsureMonthPartition(ctx, s.pool, day); err != nil {
			return eris.Wrap(err, "warehouse: ensure partition")
		}
		s.partitions.Store(month, struct{}{})
	}

	insertedAt := s.nowFunc().UTC()
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = []any{day, r.URL, r.Query, r.Impressions, r.Clicks, r.AvgPosition, runID, insertedAt}
	}

	n, err := db.CopyFrom(ctx, s.pool, db.RecordsTable, recordColumns, data)
	if err != nil {
		return eris.Wrapf(err, "warehouse: insert %s", model.FormatDay(day))
	}
	if n != int64(len(rows)) {
		return eris.Errorf("warehouse: partial insert for %s: %d of %d rows", model.FormatDay(day), n, len(rows))
	}
	return nil
}

// CountRows returns the number of stored rows for date.
func (s *PostgresStore) CountRows(ctx context.Context, date time.Time) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countRowsSQL, model.Day(date)).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "warehouse: count rows %s", model.FormatDay(date))
	}
	return n, nil
}

// Report re-aggregates stored rows per (query, url) across the inclusive date
// range. Positions are weighted by impressions.
func (s *PostgresStore) Report(ctx context.Context, from, to time.Time) ([]model.ReportRow, error) {
	rows, err := s.pool.Query(ctx, reportSQL, model.Day(from), model.Day(to))
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query report")
	}
	defer rows.Close()

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

package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := NewPostgres(mock)
	s.nowFunc = func() time.Time { return time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

var recordsIdent = pgx.Identifier{"search_data", "search_records"}

func TestPostgresInsert_EnsuresPartitionOnce(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_data.search_records_y2024m06").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(recordsIdent, recordColumns).WillReturnResult(1)
	mock.ExpectCopyFrom(recordsIdent, recordColumns).WillReturnResult(1)

	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, day, uuid.New(), batch))
	require.NoError(t, s.Insert(ctx, day.AddDate(0, 0, 5), uuid.New(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsert_PartialCopy(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(recordsIdent, recordColumns).WillReturnResult(0)

	err := s.Insert(context.Background(), day, uuid.New(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partial insert for 2024-06-01: 0 of 1 rows")
}

func TestPostgresInsert_PartitionError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(errors.New("permission denied"))

	err := s.Insert(context.Background(), day, uuid.New(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure partition")
}

func TestPostgresCountRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM search_data.search_records").
		WithArgs(day).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := s.CountRows(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestPostgresReport(t *testing.T) {
	s, mock := newMockStore(t)
	to := day.AddDate(0, 0, 6)

	mock.ExpectQuery("GROUP BY query, url").
		WithArgs(day, to).
		WillReturnRows(pgxmock.NewRows([]string{"query", "url", "clicks", "impressions", "avg_position", "rows"}).
			AddRow("q1", "https://x/a", int64(60), int64(600), 1.5, int64(2)).
			AddRow("q2", "https://x/b", int64(5), int64(50), 3.0, int64(1)))

	got, err := s.Report(context.Background(), day, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[0].Query)
	assert.Equal(t, int64(2), got[0].Rows)
	assert.InDelta(t, 3.0, got[1].AvgPosition, 1e-9)
}

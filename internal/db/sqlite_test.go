package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLite_Idempotent(t *testing.T) {
	sqlDB, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer sqlDB.Close() //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, MigrateSQLite(ctx, sqlDB))
	require.NoError(t, MigrateSQLite(ctx, sqlDB))

	var n int
	require.NoError(t, sqlDB.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('search_records', 'progress_ledger')`,
	).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestSQLiteVisibilityTrigger_RejectsFreshRows(t *testing.T) {
	sqlDB, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer sqlDB.Close() //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, MigrateSQLite(ctx, sqlDB))

	_, err = sqlDB.ExecContext(ctx,
		`INSERT INTO progress_ledger (data_date, record_position, is_date_completed, updated_at) VALUES ('2024-01-01', 0, 1, '2024-01-01 00:00:00.000000')`)
	require.NoError(t, err)

	_, err = sqlDB.ExecContext(ctx, `DELETE FROM progress_ledger`)
	require.Error(t, err)
	assert.True(t, IsVisibilityConflict(err))

	_, err = sqlDB.ExecContext(ctx,
		`INSERT INTO progress_ledger (data_date, record_position, is_date_completed, updated_at, inserted_at) VALUES ('2024-01-02', 0, 1, '2024-01-02 00:00:00.000000', '2000-01-01 00:00:00.000000')`)
	require.NoError(t, err)

	res, err := sqlDB.ExecContext(ctx, `DELETE FROM progress_ledger WHERE data_date = '2024-01-02'`)
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)
}

package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthPartitionName(t *testing.T) {
	day := time.Date(2024, time.March, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "search_records_y2024m03", MonthPartitionName(day))
}

func TestEnsureMonthPartition_Creates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS search_data\.search_records_y2024m12 PARTITION OF search_data\.search_records FOR VALUES FROM \('2024-12-01'\) TO \('2025-01-01'\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	name, err := EnsureMonthPartition(context.Background(), mock, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "search_records_y2024m12", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureMonthPartition_DefaultPartitionConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
		WillReturnError(errors.New(`updated partition constraint for default partition "search_records_default" would be violated`))

	name, err := EnsureMonthPartition(context.Background(), mock, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestEnsureMonthPartition_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(errors.New("permission denied"))

	_, err = EnsureMonthPartition(context.Background(), mock, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create partition search_records_y2024m01")
}

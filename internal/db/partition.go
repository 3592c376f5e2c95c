package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RecordsTable is the date-partitioned warehouse table.
const RecordsTable = "search_records"

// MonthPartitionName returns the partition table name holding day.
func MonthPartitionName(day time.Time) string {
	return fmt.Sprintf("%s_y%04dm%02d", RecordsTable, day.Year(), int(day.Month()))
}

// EnsureMonthPartition creates the monthly range partition of search_records
// covering day. An existing partition is not an error. When the default
// partition already holds rows for the month, Postgres refuses to attach a
// new range; the rows then keep landing in the default partition.
func EnsureMonthPartition(ctx context.Context, pool Pool, day time.Time) (string, error) {
	start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	name := MonthPartitionName(day)

	sql := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s.%s PARTITION OF %s.%s FOR VALUES FROM ('%s') TO ('%s')`,
		Schema, name, Schema, RecordsTable,
		start.Format(time.DateOnly), end.Format(time.DateOnly),
	)

	log := zap.L().With(
		zap.String("component", "db.partition"),
		zap.String("partition", name),
	)

	if _, err := pool.Exec(ctx, sql); err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "already exists"):
			return name, nil
		case strings.Contains(msg, "default partition"):
			log.Warn("month rows already in default partition, skipping", zap.Error(err))
			return "", nil
		}
		return "", eris.Wrapf(err, "db: create partition %s", name)
	}
	log.Debug("partition ensured")
	return name, nil
}

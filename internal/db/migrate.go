package db

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 4417209

// Migrate runs all pending SQL migrations in lexicographic order.
// It creates the search_data schema and schema_migrations tracking table if
// needed, then applies any .sql files not yet recorded. Everything runs in
// one transaction holding a transaction-scoped advisory lock, so concurrent
// callers serialize and the lock is released on commit or rollback.
func Migrate(ctx context.Context, pool Pool) (int, error) {
	log := zap.L().With(zap.String("component", "db.migrate"))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: begin migration transaction")
	}

	count, total, err := migrateTx(ctx, tx, log)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn("db: migration rollback failed", zap.Error(rbErr))
		}
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: commit migrations")
	}

	log.Info("migrations complete", zap.Int("applied", count), zap.Int("total", total))
	return count, nil
}

func migrateTx(ctx context.Context, tx pgx.Tx, log *zap.Logger) (int, int, error) {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return 0, 0, eris.Wrap(err, "db: acquire migration advisory lock")
	}

	if err := ensureMigrationTable(ctx, tx); err != nil {
		return 0, 0, err
	}

	names, err := MigrationNames()
	if err != nil {
		return 0, 0, err
	}

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return 0, 0, err
	}

	count := 0
	for _, name := range names {
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "db: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return 0, 0, eris.Wrapf(err, "db: apply migration %s", name)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO search_data.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return 0, 0, eris.Wrapf(err, "db: record migration %s", name)
		}
		count++
	}
	return count, len(names), nil
}

// MigrationNames lists the embedded migration files in apply order.
func MigrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "db: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func ensureMigrationTable(ctx context.Context, pool Pool) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS search_data;
		CREATE TABLE IF NOT EXISTS search_data.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "db: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM search_data.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

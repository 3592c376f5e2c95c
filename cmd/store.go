package main

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/db"
	"github.com/sells-group/search-harvest/internal/ledger"
	"github.com/sells-group/search-harvest/internal/warehouse"
)

// backend bundles the ledger and warehouse sharing one database.
type backend struct {
	ledger    ledger.Ledger
	warehouse warehouse.Store
	close     func()
}

// openBackend connects to the configured store. With migrate set, pending
// schema migrations are applied first.
func openBackend(ctx context.Context, migrate bool) (*backend, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := db.Open(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := migratePostgres(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &backend{
			ledger:    ledger.NewPostgres(pool),
			warehouse: warehouse.NewPostgres(pool),
			close:     pool.Close,
		}, nil
	case "sqlite":
		sqlDB, err := db.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := db.MigrateSQLite(ctx, sqlDB); err != nil {
				_ = sqlDB.Close()
				return nil, err
			}
		}
		return &backend{
			ledger:    ledger.NewSQLite(sqlDB),
			warehouse: warehouse.NewSQLite(sqlDB),
			close:     closeSQLite(sqlDB),
		}, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return eris.Wrap(err, "migrate")
	}
	zap.L().Info("migrations applied", zap.Int("applied", applied))
	return nil
}

func closeSQLite(sqlDB *sql.DB) func() {
	return func() {
		if err := sqlDB.Close(); err != nil {
			zap.L().Warn("sqlite: close failed", zap.Error(err))
		}
	}
}

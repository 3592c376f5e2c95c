package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Validate checks the configuration needed by a command. mode is "harvest"
// for a pipeline run and "store" for commands that only touch the database.
// All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "harvest":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateHarvest()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.MaxConns < 1 {
			errs = append(errs, "store.max_conns must be >= 1")
		}
		if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
			errs = append(errs, "store.min_conns must be between 0 and store.max_conns")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Ledger.RetentionMinutes < 0 {
		errs = append(errs, "ledger.retention_minutes must be >= 0")
	}
	return errs
}

func (c *Config) validateHarvest() []string {
	var errs []string
	if c.Source.SiteURL == "" {
		errs = append(errs, "source.site_url is required")
	}
	if c.Source.TimeoutSecs <= 0 {
		errs = append(errs, "source.timeout_secs must be > 0")
	}
	if c.Source.RequestsPerSecond < 0 {
		errs = append(errs, "source.requests_per_second must be >= 0")
	}

	h := c.Harvest
	switch h.Mode {
	case "auto", "backfill", "incremental":
	default:
		errs = append(errs, fmt.Sprintf("harvest.mode %q is not one of auto, backfill, incremental", h.Mode))
	}
	if h.PageSize <= 0 {
		errs = append(errs, "harvest.page_size must be > 0")
	}
	if h.DailyCallBudget < 0 {
		errs = append(errs, "harvest.daily_call_budget must be >= 0")
	}
	if h.BackfillDays < 1 || h.IncrementalDays < 1 {
		errs = append(errs, "harvest.backfill_days and harvest.incremental_days must be >= 1")
	}
	if h.EmbargoDays < 0 {
		errs = append(errs, "harvest.embargo_days must be >= 0")
	}
	if h.BreakerThreshold < 0 {
		errs = append(errs, "harvest.breaker_threshold must be >= 0")
	}
	if _, err := time.LoadLocation(h.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("harvest.timezone %q is invalid", h.Timezone))
	}

	if c.Writer.MaxRetries < 1 {
		errs = append(errs, "writer.max_retries must be >= 1")
	}
	if c.Writer.RetryDelaySecs < 0 {
		errs = append(errs, "writer.retry_delay_secs must be >= 0")
	}
	return errs
}

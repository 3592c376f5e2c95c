package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Harvest HarvestConfig `yaml:"harvest" mapstructure:"harvest"`
	Writer  WriterConfig  `yaml:"writer" mapstructure:"writer"`
	Ledger  LedgerConfig  `yaml:"ledger" mapstructure:"ledger"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend holding the ledger and the
// warehouse table.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures the Search Console client.
type SourceConfig struct {
	SiteURL           string  `yaml:"site_url" mapstructure:"site_url"`
	CredentialsFile   string  `yaml:"credentials_file" mapstructure:"credentials_file"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	SearchType        string  `yaml:"search_type" mapstructure:"search_type"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// HarvestConfig configures date planning and the per-invocation budget.
type HarvestConfig struct {
	Mode             string `yaml:"mode" mapstructure:"mode"`
	BackfillDays     int    `yaml:"backfill_days" mapstructure:"backfill_days"`
	IncrementalDays  int    `yaml:"incremental_days" mapstructure:"incremental_days"`
	EmbargoDays      int    `yaml:"embargo_days" mapstructure:"embargo_days"`
	DailyCallBudget  int    `yaml:"daily_call_budget" mapstructure:"daily_call_budget"`
	PageSize         int    `yaml:"page_size" mapstructure:"page_size"`
	Timezone         string `yaml:"timezone" mapstructure:"timezone"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// WriterConfig configures the warehouse write retry policy.
type WriterConfig struct {
	MaxRetries     int `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelaySecs int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
}

// LedgerConfig configures progress ledger maintenance.
type LedgerConfig struct {
	RetentionMinutes int `yaml:"retention_minutes" mapstructure:"retention_minutes"`
}

// NotifyConfig configures Google Chat notifications.
type NotifyConfig struct {
	WebhookURL string   `yaml:"webhook_url" mapstructure:"webhook_url"`
	OnSuccess  bool     `yaml:"on_success" mapstructure:"on_success"`
	OnError    bool     `yaml:"on_error" mapstructure:"on_error"`
	Mentions   []string `yaml:"mentions" mapstructure:"mentions"`
	Title      string   `yaml:"title" mapstructure:"title"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "harvest.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("source.site_url", "")
	v.SetDefault("source.credentials_file", "")
	v.SetDefault("source.base_url", "https://searchconsole.googleapis.com/webmasters/v3")
	v.SetDefault("source.search_type", "web")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.requests_per_second", 5.0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("harvest.mode", "auto")
	v.SetDefault("harvest.backfill_days", 365)
	v.SetDefault("harvest.incremental_days", 3)
	v.SetDefault("harvest.embargo_days", 2)
	v.SetDefault("harvest.daily_call_budget", 200)
	v.SetDefault("harvest.page_size", 25000)
	v.SetDefault("harvest.timezone", "Asia/Tokyo")
	v.SetDefault("harvest.breaker_threshold", 3)
	v.SetDefault("writer.max_retries", 5)
	v.SetDefault("writer.retry_delay_secs", 10)
	v.SetDefault("ledger.retention_minutes", 90)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.on_success", true)
	v.SetDefault("notify.on_error", true)
	v.SetDefault("notify.mentions", []string{})
	v.SetDefault("notify.title", "Search harvest")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Location returns the configured harvest time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Harvest.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Harvest.Timezone)
	}
	return loc, nil
}

// Retention returns the ledger prune threshold age.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Ledger.RetentionMinutes) * time.Minute
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

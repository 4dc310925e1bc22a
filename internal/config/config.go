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
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Geocode GatewayConfig `yaml:"geocode" mapstructure:"geocode"`
	Verify  GatewayConfig `yaml:"verify" mapstructure:"verify"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`

	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the Postgres connection.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig configures publisher import runs.
type ImportConfig struct {
	ChunkSize         int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	Concurrency       int    `yaml:"concurrency" mapstructure:"concurrency"`
	CreateBatchSize   int    `yaml:"create_batch_size" mapstructure:"create_batch_size"`
	UpdateBatchSize   int    `yaml:"update_batch_size" mapstructure:"update_batch_size"`
	EventBatchSize    int    `yaml:"event_batch_size" mapstructure:"event_batch_size"`
	CleanupWindowDays int    `yaml:"cleanup_window_days" mapstructure:"cleanup_window_days"`
	LeaseTTLMinutes   int    `yaml:"lease_ttl_minutes" mapstructure:"lease_ttl_minutes"`
	PolicyFile        string `yaml:"policy_file" mapstructure:"policy_file"`
}

// CleanupWindow returns the empty-feed cleanup window.
func (c ImportConfig) CleanupWindow() time.Duration {
	return time.Duration(c.CleanupWindowDays) * 24 * time.Hour
}

// LeaseTTL returns how long a run may hold its publisher lease.
func (c ImportConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLMinutes) * time.Minute
}

// FetchConfig configures feed downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// GatewayConfig configures an external enrichment API.
type GatewayConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-request timeout.
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig configures retries of gateway calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the gateway circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures import health alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StuckAfterMinutes    int     `yaml:"stuck_after_minutes" mapstructure:"stuck_after_minutes"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
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
	v.SetEnvPrefix("MISSIONSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("import.chunk_size", 1000)
	v.SetDefault("import.concurrency", 10)
	v.SetDefault("import.create_batch_size", 500)
	v.SetDefault("import.update_batch_size", 50)
	v.SetDefault("import.event_batch_size", 5000)
	v.SetDefault("import.cleanup_window_days", 7)
	v.SetDefault("import.lease_ttl_minutes", 120)
	v.SetDefault("import.policy_file", "")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "mission-sync/1.0")
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.base_url", "https://api-adresse.data.gouv.fr")
	v.SetDefault("geocode.concurrency", 5)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("verify.enabled", true)
	v.SetDefault("verify.base_url", "https://recherche-entreprises.api.gouv.fr")
	v.SetDefault("verify.concurrency", 5)
	v.SetDefault("verify.timeout_secs", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stuck_after_minutes", 180)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

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

// Validate checks the settings a command mode depends on. Modes are
// "import", "imports", "serve" and "migrate"; every problem found is
// reported.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "import":
		errs = append(errs, c.validateImport()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	case "migrate", "imports":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.MinConns > c.Store.MaxConns && c.Store.MaxConns > 0 {
		errs = append(errs, "store.min_conns must not exceed store.max_conns")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateImport() []string {
	var errs []string
	if c.Import.ChunkSize < 1 {
		errs = append(errs, "import.chunk_size must be > 0")
	}
	if c.Import.Concurrency < 1 || c.Import.Concurrency > 100 {
		errs = append(errs, "import.concurrency must be between 1 and 100")
	}
	if c.Import.CleanupWindowDays < 1 {
		errs = append(errs, "import.cleanup_window_days must be > 0")
	}
	if c.Import.LeaseTTLMinutes < 1 {
		errs = append(errs, "import.lease_ttl_minutes must be > 0")
	}
	if c.Fetch.RatePerSec < 0 {
		errs = append(errs, "fetch.rate_per_sec must be >= 0")
	}
	return errs
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

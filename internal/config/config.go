package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Verifier VerifierConfig `yaml:"verifier" mapstructure:"verifier"`
	Poll     PollConfig     `yaml:"poll" mapstructure:"poll"`
	Results  ResultsConfig  `yaml:"results" mapstructure:"results"`
	Single   SingleConfig   `yaml:"single" mapstructure:"single"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// VerifierConfig points the CLI at the verification backend.
type VerifierConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Timeout returns the per-request HTTP timeout.
func (c VerifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PollConfig configures job status polling.
type PollConfig struct {
	IntervalMs int `yaml:"interval_ms" mapstructure:"interval_ms"`
	MaxErrors  int `yaml:"max_errors" mapstructure:"max_errors"`
}

// Interval returns the delay between status requests.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// ResultsConfig configures result fetching and display.
type ResultsConfig struct {
	FetchLimit int         `yaml:"fetch_limit" mapstructure:"fetch_limit"`
	PageSize   int         `yaml:"page_size" mapstructure:"page_size"`
	SoftLimit  int         `yaml:"soft_limit" mapstructure:"soft_limit"`
	FetchRetry RetryConfig `yaml:"fetch_retry" mapstructure:"fetch_retry"`
}

// RetryConfig configures retries of a transient backend failure.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// SingleConfig configures the single-address check flow.
type SingleConfig struct {
	ConfirmTTLSecs int `yaml:"confirm_ttl_secs" mapstructure:"confirm_ttl_secs"`
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ConfirmTTL returns how long an escalation token stays valid.
func (c SingleConfig) ConfirmTTL() time.Duration {
	return time.Duration(c.ConfirmTTLSecs) * time.Second
}

// StoreConfig configures the session history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the single-check result cache.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	TTLMins   int    `yaml:"ttl_mins" mapstructure:"ttl_mins"`
}

// TTL returns how long cached results live.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMins) * time.Minute
}

// ServerConfig configures the operator HTTP API.
type ServerConfig struct {
	Port       int    `yaml:"port" mapstructure:"port"`
	AuthSecret string `yaml:"auth_secret" mapstructure:"auth_secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; values already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("verifier.base_url", "http://localhost:8080")
	v.SetDefault("verifier.api_key", "")
	v.SetDefault("verifier.timeout_secs", 60)
	v.SetDefault("verifier.rate_limit", 0)
	v.SetDefault("poll.interval_ms", 2000)
	v.SetDefault("poll.max_errors", 0)
	v.SetDefault("results.fetch_limit", 100000)
	v.SetDefault("results.page_size", 50)
	v.SetDefault("results.soft_limit", 100000)
	v.SetDefault("results.fetch_retry.max_attempts", 3)
	v.SetDefault("results.fetch_retry.initial_backoff_ms", 500)
	v.SetDefault("single.confirm_ttl_secs", 300)
	v.SetDefault("single.concurrency", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "verify.db")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl_mins", 15)
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.auth_secret", "")
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

// Validate checks that the fields a command needs are usable.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Verifier.BaseURL == "" {
		errs = append(errs, "verifier.base_url is required")
	}
	if c.Poll.IntervalMs <= 0 {
		errs = append(errs, "poll.interval_ms must be positive")
	}
	if c.Poll.MaxErrors < 0 {
		errs = append(errs, "poll.max_errors must not be negative")
	}
	if c.Results.PageSize <= 0 {
		errs = append(errs, "results.page_size must be positive")
	}

	switch c.Store.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, fmt.Sprintf("store.database_url is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver))
	}

	switch mode {
	case "check":
		if c.Single.Concurrency <= 0 {
			errs = append(errs, "single.concurrency must be positive")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Moderation ModerationConfig `yaml:"moderation" mapstructure:"moderation"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	FastModel    string  `yaml:"fast_model" mapstructure:"fast_model"`
	PreciseModel string  `yaml:"precise_model" mapstructure:"precise_model"`
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RPS          float64 `yaml:"rps" mapstructure:"rps"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
}

// ModerationConfig configures the moderation pipeline.
type ModerationConfig struct {
	PolicyPath            string `yaml:"policy_path" mapstructure:"policy_path"`
	GalleryLimit          int    `yaml:"gallery_limit" mapstructure:"gallery_limit"`
	GalleryChunkSize      int    `yaml:"gallery_chunk_size" mapstructure:"gallery_chunk_size"`
	GalleryConcurrency    int    `yaml:"gallery_concurrency" mapstructure:"gallery_concurrency"`
	CacheTTLHours         int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	FingerprintWindowDays int    `yaml:"fingerprint_window_days" mapstructure:"fingerprint_window_days"`
}

// RetryConfig configures provider call retries.
type RetryConfig struct {
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialDelaySec int     `yaml:"initial_delay_secs" mapstructure:"initial_delay_secs"`
	MaxDelaySec     int     `yaml:"max_delay_secs" mapstructure:"max_delay_secs"`
	Multiplier      float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// BreakerConfig configures the per-tier circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSec  int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	HalfOpenMax      int `yaml:"half_open_max" mapstructure:"half_open_max"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CARMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "moderation.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.precise_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.rps", 5)
	v.SetDefault("anthropic.burst", 10)
	v.SetDefault("moderation.gallery_limit", 5)
	v.SetDefault("moderation.gallery_chunk_size", 4)
	v.SetDefault("moderation.gallery_concurrency", 2)
	v.SetDefault("moderation.cache_ttl_hours", 24)
	v.SetDefault("moderation.fingerprint_window_days", 60)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay_secs", 1)
	v.SetDefault("retry.max_delay_secs", 30)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 60)
	v.SetDefault("breaker.half_open_max", 1)
	v.SetDefault("server.port", 8080)
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

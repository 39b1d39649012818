package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Breakdown BreakdownConfig `mapstructure:"breakdown"`
	Market    MarketConfig    `mapstructure:"market"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
	Events    EventsConfig    `mapstructure:"events"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AnalyticsConfig holds retention and snapshot scheduling
type AnalyticsConfig struct {
	RetentionPeriod  time.Duration `mapstructure:"retention_period"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	MaxSnapshots     int           `mapstructure:"max_snapshots"`
}

// BreakdownConfig holds the filters applied to breakdown groups
type BreakdownConfig struct {
	MinBets       int     `mapstructure:"min_bets"`
	MinStake      float64 `mapstructure:"min_stake"`
	MinConfidence float64 `mapstructure:"min_confidence"` // percent
}

// MarketConfig holds market metrics engine configuration
type MarketConfig struct {
	MaxHistory   int     `mapstructure:"max_history"`
	LiquidityCap float64 `mapstructure:"liquidity_cap"` // reported liquidity when the spread is zero
}

// AnomalyConfig holds anomaly detector configuration
type AnomalyConfig struct {
	Threshold  float64 `mapstructure:"threshold"` // standard deviations
	MinHistory int     `mapstructure:"min_history"`
	Window     int     `mapstructure:"window"`
	SigmaFloor float64 `mapstructure:"sigma_floor"`
}

// EventsConfig holds event source and ingestion configuration
type EventsConfig struct {
	Source        string `mapstructure:"source"` // "redis" or "none"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Stream        string `mapstructure:"stream"`
	Group         string `mapstructure:"group"`
	Consumer      string `mapstructure:"consumer"`
	Workers       int    `mapstructure:"workers"`
	QueueSize     int    `mapstructure:"queue_size"`
}

// StorageConfig holds archive configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken      string        `mapstructure:"bot_token"`
	ChatID        string        `mapstructure:"chat_id"`
	Enabled       bool          `mapstructure:"enabled"`
	MinSeverity   string        `mapstructure:"min_severity"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	RatePerMinute float64       `mapstructure:"rate_per_minute"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

// APIConfig holds the read-only HTTP API configuration
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file at
// path (skipped when empty) and BETPULSE_* environment variables.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. BETPULSE_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("BETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Analytics defaults
	v.SetDefault("analytics.retention_period", "2160h") // 90 days
	v.SetDefault("analytics.snapshot_interval", "1h")
	v.SetDefault("analytics.cleanup_interval", "1h")
	v.SetDefault("analytics.max_snapshots", 2160)

	// Breakdown defaults
	v.SetDefault("breakdown.min_bets", 1)
	v.SetDefault("breakdown.min_stake", 0.0)
	v.SetDefault("breakdown.min_confidence", 0.0)

	// Market defaults
	v.SetDefault("market.max_history", 100)
	v.SetDefault("market.liquidity_cap", 1e9)

	// Anomaly defaults
	v.SetDefault("anomaly.threshold", 2.5)
	v.SetDefault("anomaly.min_history", 3)
	v.SetDefault("anomaly.window", 20)
	v.SetDefault("anomaly.sigma_floor", 0.05)

	// Events defaults
	v.SetDefault("events.source", "redis")
	v.SetDefault("events.redis_addr", "localhost:6379")
	v.SetDefault("events.redis_password", "")
	v.SetDefault("events.redis_db", 0)
	v.SetDefault("events.stream", "betpulse:events")
	v.SetDefault("events.group", "betpulse-analytics")
	v.SetDefault("events.consumer", "betpulse-1")
	v.SetDefault("events.workers", 4)
	v.SetDefault("events.queue_size", 256)

	// Storage defaults
	v.SetDefault("storage.db_path", "") // empty = $TMPDIR/betpulse/data.db

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.min_severity", "high")
	v.SetDefault("telegram.cooldown", "30m")
	v.SetDefault("telegram.rate_per_minute", 20.0)
	v.SetDefault("telegram.max_retries", 3)

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8090")
	v.SetDefault("api.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Analytics config
	if c.Analytics.RetentionPeriod < time.Hour {
		return fmt.Errorf("analytics.retention_period must be at least 1 hour")
	}
	if c.Analytics.SnapshotInterval < time.Minute {
		return fmt.Errorf("analytics.snapshot_interval must be at least 1 minute")
	}
	if c.Analytics.CleanupInterval < time.Minute {
		return fmt.Errorf("analytics.cleanup_interval must be at least 1 minute")
	}
	if c.Analytics.MaxSnapshots < 1 {
		return fmt.Errorf("analytics.max_snapshots must be at least 1")
	}

	// Validate Breakdown config
	if c.Breakdown.MinBets < 0 {
		return fmt.Errorf("breakdown.min_bets must not be negative")
	}
	if c.Breakdown.MinStake < 0 {
		return fmt.Errorf("breakdown.min_stake must not be negative")
	}
	if c.Breakdown.MinConfidence < 0 || c.Breakdown.MinConfidence > 100 {
		return fmt.Errorf("breakdown.min_confidence must be between 0 and 100")
	}

	// Validate Market config
	if c.Market.MaxHistory < 2 {
		return fmt.Errorf("market.max_history must be at least 2")
	}
	if c.Market.LiquidityCap <= 0 {
		return fmt.Errorf("market.liquidity_cap must be positive")
	}

	// Validate Anomaly config
	if c.Anomaly.Threshold <= 0 {
		return fmt.Errorf("anomaly.threshold must be positive")
	}
	if c.Anomaly.MinHistory < 2 {
		return fmt.Errorf("anomaly.min_history must be at least 2")
	}
	if c.Anomaly.Window < 1 {
		return fmt.Errorf("anomaly.window must be at least 1")
	}
	if c.Anomaly.SigmaFloor < 0 || c.Anomaly.SigmaFloor > 1 {
		return fmt.Errorf("anomaly.sigma_floor must be between 0 and 1")
	}
	if c.Market.MaxHistory < c.Anomaly.MinHistory {
		return fmt.Errorf("market.max_history (%d) must be at least anomaly.min_history (%d)",
			c.Market.MaxHistory, c.Anomaly.MinHistory)
	}

	// Validate Events config
	switch c.Events.Source {
	case "redis":
		if c.Events.RedisAddr == "" {
			return fmt.Errorf("events.redis_addr is required when events.source is redis")
		}
		if c.Events.Stream == "" || c.Events.Group == "" || c.Events.Consumer == "" {
			return fmt.Errorf("events.stream, events.group and events.consumer are required when events.source is redis")
		}
	case "none":
	default:
		return fmt.Errorf("events.source must be one of: redis, none")
	}
	if c.Events.Workers < 1 {
		return fmt.Errorf("events.workers must be at least 1")
	}
	if c.Events.QueueSize < 1 {
		return fmt.Errorf("events.queue_size must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	validSeverities := map[string]bool{"low": true, "medium": true, "high": true}
	if !validSeverities[c.Telegram.MinSeverity] {
		return fmt.Errorf("telegram.min_severity must be one of: low, medium, high")
	}
	if c.Telegram.Cooldown < 0 {
		return fmt.Errorf("telegram.cooldown must not be negative")
	}
	if c.Telegram.RatePerMinute <= 0 {
		return fmt.Errorf("telegram.rate_per_minute must be positive")
	}

	// Validate API config
	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api.addr is required when the api is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

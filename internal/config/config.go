// Package config handles YAML configuration loading with environment
// variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Scraper     ScraperConfig   `mapstructure:"scraper"`
	Scoring     ScoringConfig   `mapstructure:"scoring"`
	AutoTuner   AutoTunerConfig `mapstructure:"autotuner"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Health      HealthConfig    `mapstructure:"health"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Subscribers []string        `mapstructure:"subscribers"`
}

// ScraperConfig holds source-site polling configuration.
type ScraperConfig struct {
	FeedURL             string        `mapstructure:"feed_url"`
	PollIntervalMin     int           `mapstructure:"poll_interval_min"`
	PollIntervalMax     int           `mapstructure:"poll_interval_max"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	CycleSoftDeadline   time.Duration `mapstructure:"cycle_soft_deadline"`
	NotifyConcurrency   int           `mapstructure:"notify_concurrency"`
}

// ScoringConfig holds the default scoring/gate parameters. AutoTuner
// overwrites viral_threshold at runtime via the config store; these are
// the seed values used on first boot.
type ScoringConfig struct {
	Gravity     float64 `mapstructure:"gravity"`
	ScoreTier4  float64 `mapstructure:"score_tier_4"`
	ScoreTier3  float64 `mapstructure:"score_tier_3"`
	ScoreTier2  float64 `mapstructure:"score_tier_2"`
	ViralThresh float64 `mapstructure:"viral_threshold"`
	MinSeedTemp float64 `mapstructure:"min_seed_temperature"`
}

// AutoTunerConfig holds the background tuning schedule.
type AutoTunerConfig struct {
	CronSpec string `mapstructure:"cron_spec"`
	Enabled  bool   `mapstructure:"enabled"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// HealthConfig holds the liveness/metrics HTTP surface configuration.
type HealthConfig struct {
	BindAddr   string        `mapstructure:"bind_addr"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from a YAML file with environment variable
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.SetEnvPrefix("DEALWATCHER")
	v.AutomaticEnv()

	_ = v.BindEnv("scraper.feed_url", "DEALWATCHER_SCRAPER_FEED_URL")
	_ = v.BindEnv("scraper.poll_interval_min", "DEALWATCHER_SCRAPER_POLL_INTERVAL_MIN")
	_ = v.BindEnv("scraper.poll_interval_max", "DEALWATCHER_SCRAPER_POLL_INTERVAL_MAX")
	_ = v.BindEnv("scraper.timeout", "DEALWATCHER_SCRAPER_TIMEOUT")
	_ = v.BindEnv("scraper.max_retries", "DEALWATCHER_SCRAPER_MAX_RETRIES")
	_ = v.BindEnv("scraper.retry_delay_base", "DEALWATCHER_SCRAPER_RETRY_DELAY_BASE")
	_ = v.BindEnv("scraper.max_idle_conns", "DEALWATCHER_SCRAPER_MAX_IDLE_CONNS")
	_ = v.BindEnv("scraper.max_idle_conns_per_host", "DEALWATCHER_SCRAPER_MAX_IDLE_CONNS_PER_HOST")
	_ = v.BindEnv("scraper.idle_conn_timeout", "DEALWATCHER_SCRAPER_IDLE_CONN_TIMEOUT")
	_ = v.BindEnv("scraper.cycle_soft_deadline", "DEALWATCHER_SCRAPER_CYCLE_SOFT_DEADLINE")
	_ = v.BindEnv("scraper.notify_concurrency", "DEALWATCHER_SCRAPER_NOTIFY_CONCURRENCY")
	_ = v.BindEnv("scoring.gravity", "DEALWATCHER_SCORING_GRAVITY")
	_ = v.BindEnv("scoring.score_tier_4", "DEALWATCHER_SCORING_SCORE_TIER_4")
	_ = v.BindEnv("scoring.score_tier_3", "DEALWATCHER_SCORING_SCORE_TIER_3")
	_ = v.BindEnv("scoring.score_tier_2", "DEALWATCHER_SCORING_SCORE_TIER_2")
	_ = v.BindEnv("scoring.viral_threshold", "DEALWATCHER_SCORING_VIRAL_THRESHOLD")
	_ = v.BindEnv("scoring.min_seed_temperature", "DEALWATCHER_SCORING_MIN_SEED_TEMPERATURE")
	_ = v.BindEnv("autotuner.cron_spec", "DEALWATCHER_AUTOTUNER_CRON_SPEC")
	_ = v.BindEnv("autotuner.enabled", "DEALWATCHER_AUTOTUNER_ENABLED")
	_ = v.BindEnv("telegram.bot_token", "DEALWATCHER_TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.enabled", "DEALWATCHER_TELEGRAM_ENABLED")
	_ = v.BindEnv("telegram.max_retries", "DEALWATCHER_TELEGRAM_MAX_RETRIES")
	_ = v.BindEnv("telegram.retry_delay_base", "DEALWATCHER_TELEGRAM_RETRY_DELAY_BASE")
	_ = v.BindEnv("storage.db_path", "DEALWATCHER_STORAGE_DB_PATH")
	_ = v.BindEnv("subscribers", "DEALWATCHER_SUBSCRIBERS")
	_ = v.BindEnv("health.bind_addr", "DEALWATCHER_HEALTH_BIND_ADDR")
	_ = v.BindEnv("health.stale_after", "DEALWATCHER_HEALTH_STALE_AFTER")
	_ = v.BindEnv("logging.level", "DEALWATCHER_LOGGING_LEVEL")
	_ = v.BindEnv("logging.format", "DEALWATCHER_LOGGING_FORMAT")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.feed_url", "https://www.promodescuentos.com/deals/newest.json")
	v.SetDefault("scraper.poll_interval_min", 5)
	v.SetDefault("scraper.poll_interval_max", 12)
	v.SetDefault("scraper.timeout", "15s")
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.retry_delay_base", "1s")
	v.SetDefault("scraper.max_idle_conns", 100)
	v.SetDefault("scraper.max_idle_conns_per_host", 10)
	v.SetDefault("scraper.idle_conn_timeout", "90s")
	v.SetDefault("scraper.cycle_soft_deadline", "4m")
	v.SetDefault("scraper.notify_concurrency", 10)

	v.SetDefault("scoring.gravity", 1.2)
	v.SetDefault("scoring.score_tier_4", 500.0)
	v.SetDefault("scoring.score_tier_3", 200.0)
	v.SetDefault("scoring.score_tier_2", 100.0)
	v.SetDefault("scoring.viral_threshold", 50.0)
	v.SetDefault("scoring.min_seed_temperature", 15.0)

	v.SetDefault("autotuner.cron_spec", "@every 6h")
	v.SetDefault("autotuner.enabled", true)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.db_path", "dealwatcher.db")

	v.SetDefault("health.bind_addr", ":8080")
	v.SetDefault("health.stale_after", "20m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("subscribers", []string{})
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Scraper.FeedURL == "" {
		return fmt.Errorf("scraper.feed_url is required")
	}
	if c.Scraper.PollIntervalMin < 1 {
		return fmt.Errorf("scraper.poll_interval_min must be at least 1 minute")
	}
	if c.Scraper.PollIntervalMax < c.Scraper.PollIntervalMin {
		return fmt.Errorf("scraper.poll_interval_max must be >= poll_interval_min")
	}
	if c.Scraper.NotifyConcurrency < 1 {
		return fmt.Errorf("scraper.notify_concurrency must be at least 1")
	}
	if c.Scraper.CycleSoftDeadline < time.Second {
		return fmt.Errorf("scraper.cycle_soft_deadline must be at least 1 second")
	}

	if c.Scoring.Gravity <= 0 {
		return fmt.Errorf("scoring.gravity must be positive")
	}
	if c.Scoring.ScoreTier4 <= c.Scoring.ScoreTier3 || c.Scoring.ScoreTier3 <= c.Scoring.ScoreTier2 {
		return fmt.Errorf("scoring tiers must be strictly descending: tier_4 > tier_3 > tier_2")
	}
	if c.Scoring.ViralThresh < 0 {
		return fmt.Errorf("scoring.viral_threshold must not be negative")
	}
	if c.Scoring.MinSeedTemp < 0 {
		return fmt.Errorf("scoring.min_seed_temperature must not be negative")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Health.BindAddr == "" {
		return fmt.Errorf("health.bind_addr is required")
	}
	if c.Health.StaleAfter < time.Minute {
		return fmt.Errorf("health.stale_after must be at least 1 minute")
	}

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

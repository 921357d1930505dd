package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	content := `
scraper:
  feed_url: "https://example.com/deals/newest.json"
  poll_interval_min: 5
  poll_interval_max: 12
  notify_concurrency: 8

scoring:
  gravity: 1.8
  score_tier_4: 350
  score_tier_3: 200
  score_tier_2: 100
  viral_threshold: 50
  min_seed_temperature: 15

telegram:
  bot_token: "test_token"
  enabled: true

storage:
  db_path: "./data/test.db"

health:
  bind_addr: ":9090"
  stale_after: "15m"

logging:
  level: "info"
  format: "json"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Scraper.PollIntervalMin != 5 {
		t.Errorf("unexpected poll_interval_min: %d", cfg.Scraper.PollIntervalMin)
	}
	if cfg.Scraper.NotifyConcurrency != 8 {
		t.Errorf("unexpected notify_concurrency: %d", cfg.Scraper.NotifyConcurrency)
	}
	if cfg.Scoring.Gravity != 1.8 {
		t.Errorf("unexpected gravity: %f", cfg.Scoring.Gravity)
	}
	if cfg.Health.BindAddr != ":9090" {
		t.Errorf("unexpected health bind_addr: %s", cfg.Health.BindAddr)
	}
	if cfg.Health.StaleAfter != 15*time.Minute {
		t.Errorf("unexpected health stale_after: %v", cfg.Health.StaleAfter)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	content := `
scraper:
  feed_url: "https://example.com/deals/newest.json"
storage:
  db_path: "./data/test.db"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scraper.PollIntervalMin != 5 || cfg.Scraper.PollIntervalMax != 12 {
		t.Errorf("expected default poll interval bounds [5,12], got [%d,%d]",
			cfg.Scraper.PollIntervalMin, cfg.Scraper.PollIntervalMax)
	}
	if cfg.AutoTuner.CronSpec != "@every 6h" {
		t.Errorf("expected default autotuner cron spec, got %q", cfg.AutoTuner.CronSpec)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default logging level info, got %q", cfg.Logging.Level)
	}
}

func TestValidateErrors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Scraper: ScraperConfig{
				FeedURL:           "https://example.com",
				PollIntervalMin:   5,
				PollIntervalMax:   12,
				NotifyConcurrency: 10,
				CycleSoftDeadline: 4 * time.Minute,
			},
			Scoring: ScoringConfig{
				Gravity:     1.8,
				ScoreTier4:  350,
				ScoreTier3:  200,
				ScoreTier2:  100,
				ViralThresh: 50,
				MinSeedTemp: 15,
			},
			Storage: StorageConfig{DBPath: "./data/test.db"},
			Health:  HealthConfig{BindAddr: ":8080", StaleAfter: 20 * time.Minute},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing feed url", func(c *Config) { c.Scraper.FeedURL = "" }, true},
		{"inverted poll interval bounds", func(c *Config) { c.Scraper.PollIntervalMax = 2 }, true},
		{"zero notify concurrency", func(c *Config) { c.Scraper.NotifyConcurrency = 0 }, true},
		{"non-descending score tiers", func(c *Config) { c.Scoring.ScoreTier3 = 400 }, true},
		{"negative viral threshold", func(c *Config) { c.Scoring.ViralThresh = -1 }, true},
		{"telegram enabled without token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = ""
		}, true},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }, true},
		{"stale_after below 1 minute", func(c *Config) { c.Health.StaleAfter = 10 * time.Second }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

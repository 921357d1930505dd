package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/promodescuentos/dealwatcher/internal/autotuner"
	"github.com/promodescuentos/dealwatcher/internal/clock"
	"github.com/promodescuentos/dealwatcher/internal/config"
	"github.com/promodescuentos/dealwatcher/internal/healthz"
	"github.com/promodescuentos/dealwatcher/internal/logger"
	"github.com/promodescuentos/dealwatcher/internal/models"
	"github.com/promodescuentos/dealwatcher/internal/notifier/telegram"
	"github.com/promodescuentos/dealwatcher/internal/orchestrator"
	"github.com/promodescuentos/dealwatcher/internal/scraper"
	"github.com/promodescuentos/dealwatcher/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	seedScoringDefaults(store, cfg)
	seedSubscribers(store, cfg)

	scrapeClient := scraper.NewClient(cfg.Scraper.FeedURL, cfg.Scraper.Timeout, scraper.Config{
		MaxRetries:          cfg.Scraper.MaxRetries,
		RetryDelayBase:      cfg.Scraper.RetryDelayBase,
		MaxIdleConns:        cfg.Scraper.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Scraper.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Scraper.IdleConnTimeout,
	})

	var notifier telegram.Notifier
	if cfg.Telegram.Enabled {
		tgClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = tgClient
		logger.Info("Telegram notifier initialized")
	} else {
		notifier = noopNotifier{}
		logger.Warn("Telegram notifications disabled; running with a no-op notifier")
	}

	reg := prometheus.NewRegistry()
	metrics := healthz.NewMetrics(reg)
	tracker := healthz.NewTracker(cfg.Health.StaleAfter)

	orch := orchestrator.New(scrapeClient, store, notifier, clock.Real{}, metrics, tracker, orchestrator.Config{
		PollIntervalMin:   time.Duration(cfg.Scraper.PollIntervalMin) * time.Minute,
		PollIntervalMax:   time.Duration(cfg.Scraper.PollIntervalMax) * time.Minute,
		CycleSoftDeadline: cfg.Scraper.CycleSoftDeadline,
		NotifyConcurrency: cfg.Scraper.NotifyConcurrency,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var tuneScheduler *autotuner.Scheduler
	if cfg.AutoTuner.Enabled {
		tuner := autotuner.New(store)
		tuneScheduler, err = autotuner.NewScheduler(tuner, cfg.AutoTuner.CronSpec)
		if err != nil {
			logger.Fatal("Failed to initialize AutoTuner schedule: %v", err)
		}
		tuneScheduler.Start()
		logger.Info("AutoTuner scheduled on %q", cfg.AutoTuner.CronSpec)
		go tuner.Run(ctx)
	}

	healthSrv := &http.Server{
		Addr:    cfg.Health.BindAddr,
		Handler: healthz.NewServer(tracker, reg),
	}
	go func() {
		logger.Info("Health/metrics server listening on %s", cfg.Health.BindAddr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server stopped: %v", err)
		}
	}()

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, draining in-flight cycle...")
		cancel()
	}()

	logger.Info("Starting dealwatcher (poll interval: %d-%dm, notify concurrency: %d)",
		cfg.Scraper.PollIntervalMin, cfg.Scraper.PollIntervalMax, cfg.Scraper.NotifyConcurrency)

	orch.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Health server shutdown: %v", err)
	}
	if tuneScheduler != nil {
		tuneScheduler.Stop()
	}

	logger.Info("Service stopped")
}

// seedScoringDefaults writes the config file's scoring values into the
// config store the first time each key is seen, so a fresh database
// boots with the operator's chosen starting point. Once AutoTuner (or an
// operator) writes a key, this never overwrites it on restart.
func seedScoringDefaults(store *storage.Storage, cfg *config.Config) {
	ctx := context.Background()
	defaults := map[string]float64{
		"gravity":         cfg.Scoring.Gravity,
		"score_tier_4":    cfg.Scoring.ScoreTier4,
		"score_tier_3":    cfg.Scoring.ScoreTier3,
		"score_tier_2":    cfg.Scoring.ScoreTier2,
		"viral_threshold": cfg.Scoring.ViralThresh,
		"min_seed_temp":   cfg.Scoring.MinSeedTemp,
	}
	for key, value := range defaults {
		exists, err := store.HasConfig(ctx, key)
		if err != nil {
			logger.Warn("Failed to check config seed for %s: %v", key, err)
			continue
		}
		if exists {
			continue
		}
		if err := store.SetConfig(ctx, key, value); err != nil {
			logger.Warn("Failed to seed config key %s: %v", key, err)
		}
	}
}

// seedSubscribers inserts the operator-configured recipient list on
// startup; SeedRecipients ignores IDs already present, so this is safe
// to run on every boot.
func seedSubscribers(store *storage.Storage, cfg *config.Config) {
	if len(cfg.Subscribers) == 0 {
		return
	}
	if err := store.SeedRecipients(context.Background(), cfg.Subscribers); err != nil {
		logger.Warn("Failed to seed subscribers: %v", err)
	}
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, recipientID string, msg models.Message) error {
	return nil
}

func (noopNotifier) SendError(ctx context.Context, recipientID string, cycleErr error) error {
	return nil
}

func (noopNotifier) SendRecovery(ctx context.Context, recipientID string, failureCount int) error {
	return nil
}

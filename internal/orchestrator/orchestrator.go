// Package orchestrator drives the cycle loop: fetch the newest deals,
// score each one, apply the notification gate, and fan out to
// subscribers. It is the one place that wires scraper, scoring, gate,
// storage, and notifier together; every other package stays pure or
// single-purpose.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/promodescuentos/dealwatcher/internal/clock"
	"github.com/promodescuentos/dealwatcher/internal/formatter"
	"github.com/promodescuentos/dealwatcher/internal/gate"
	"github.com/promodescuentos/dealwatcher/internal/healthz"
	"github.com/promodescuentos/dealwatcher/internal/logger"
	"github.com/promodescuentos/dealwatcher/internal/models"
	"github.com/promodescuentos/dealwatcher/internal/notifier/telegram"
	"github.com/promodescuentos/dealwatcher/internal/scoring"
	"github.com/promodescuentos/dealwatcher/internal/storage"
)

// Scraper is the subset of scraper.Scraper the orchestrator depends on.
type Scraper interface {
	FetchNewest(ctx context.Context) ([]models.RawDeal, error)
}

// Config holds the orchestrator's runtime knobs, sourced from
// config.Config at startup.
type Config struct {
	PollIntervalMin   time.Duration
	PollIntervalMax   time.Duration
	CycleSoftDeadline time.Duration
	NotifyConcurrency int
}

// Orchestrator runs the cycle loop described in the scan-and-notify
// pipeline: fetch, score, gate, notify, persist.
type Orchestrator struct {
	scraper  Scraper
	store    *storage.Storage
	notifier telegram.Notifier
	clock    clock.Clock
	metrics  *healthz.Metrics
	tracker  *healthz.Tracker
	cfg      Config

	consecutiveFailures int
}

// New builds an Orchestrator.
func New(scraper Scraper, store *storage.Storage, notifier telegram.Notifier, clk clock.Clock,
	metrics *healthz.Metrics, tracker *healthz.Tracker, cfg Config) *Orchestrator {
	return &Orchestrator{
		scraper:  scraper,
		store:    store,
		notifier: notifier,
		clock:    clk,
		metrics:  metrics,
		tracker:  tracker,
		cfg:      cfg,
	}
}

// Run drives the cycle loop until ctx is cancelled, sleeping a jittered
// interval between cycles (spec §5: scan interval is randomized within
// a configured range to avoid a fixed, detectable polling cadence).
func (o *Orchestrator) Run(ctx context.Context) {
	logger.Info("orchestrator: running initial cycle")
	o.runCycleAndHandle(ctx)

	for {
		wait := o.jitteredInterval()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("orchestrator: stopping")
			return
		case <-timer.C:
			o.runCycleAndHandle(ctx)
		}
	}
}

func (o *Orchestrator) jitteredInterval() time.Duration {
	lo, hi := o.cfg.PollIntervalMin, o.cfg.PollIntervalMax
	if hi <= lo {
		return lo
	}
	span := hi - lo
	return lo + time.Duration(rand.Int64N(int64(span)))
}

func (o *Orchestrator) runCycleAndHandle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, o.cfg.CycleSoftDeadline)
	defer cancel()

	start := time.Now()
	scored, err := o.RunCycle(cycleCtx)
	duration := time.Since(start)

	o.metrics.CyclesTotal.Inc()
	o.metrics.CycleDuration.Observe(duration.Seconds())
	o.metrics.LastCycleTimestamp.Set(float64(start.Unix()))
	o.tracker.RecordCycle(start)

	if err != nil {
		o.consecutiveFailures++
		o.metrics.CycleFailuresTotal.Inc()
		o.metrics.ConsecutiveFailures.Set(float64(o.consecutiveFailures))
		logger.Error("orchestrator: cycle failed: %v", err)
		if o.consecutiveFailures == 3 {
			o.notifyOperatorsOfError(ctx, err)
		}
		return
	}

	if o.consecutiveFailures > 0 {
		o.notifyOperatorsOfRecovery(ctx, o.consecutiveFailures)
	}
	o.consecutiveFailures = 0
	o.metrics.ConsecutiveFailures.Set(0)
	logger.Info("orchestrator: cycle completed in %v, %d deals scored", duration, scored)
}

// RunCycle performs one fetch-score-gate-notify pass and returns the
// number of deals scored.
func (o *Orchestrator) RunCycle(ctx context.Context) (int, error) {
	raws, err := o.scraper.FetchNewest(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch newest deals: %w", err)
	}

	recipients, err := o.store.ListRecipients(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recipients: %w", err)
	}

	scoringCfg, gateCfg, err := o.loadPipelineConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pipeline config: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.NotifyConcurrency)

	for _, raw := range raws {
		raw := raw
		g.Go(func() error {
			if err := o.processDeal(gctx, raw, recipients, scoringCfg, gateCfg); err != nil {
				logger.Warn("orchestrator: failed to process deal %s: %v", raw.URL, err)
			}
			return nil // a single deal's failure never aborts the cycle
		})
	}
	_ = g.Wait()

	o.metrics.DealsScoredTotal.Add(float64(len(raws)))
	return len(raws), nil
}

func (o *Orchestrator) loadPipelineConfig(ctx context.Context) (scoring.Config, gate.Config, error) {
	gravity, tier4, tier3, tier2, viralThreshold, minSeedTemp, err := o.store.LoadScoringConfig(ctx)
	if err != nil {
		return scoring.Config{}, gate.Config{}, err
	}
	return scoring.Config{
			Gravity:     gravity,
			ScoreTier4:  tier4,
			ScoreTier3:  tier3,
			ScoreTier2:  tier2,
			ViralThresh: viralThreshold,
		}, gate.Config{
			MinSeedTemp: minSeedTemp,
		}, nil
}

func (o *Orchestrator) processDeal(ctx context.Context, raw models.RawDeal, recipients []string,
	scoringCfg scoring.Config, gateCfg gate.Config) error {

	existing, err := o.store.GetDealByURL(ctx, raw.URL)
	if err != nil {
		return fmt.Errorf("lookup existing deal: %w", err)
	}

	now := o.clock.Now()
	maxRatingNotified := 0
	var prior *scoring.PriorSnapshot
	if existing != nil {
		maxRatingNotified = existing.MaxRatingNotified
		priorRow, err := o.store.GetPriorSnapshot(ctx, existing.ID, now)
		if err != nil {
			return fmt.Errorf("load prior snapshot: %w", err)
		}
		if priorRow != nil {
			prior = &scoring.PriorSnapshot{
				Temperature: priorRow.Temperature,
				Velocity:    priorRow.Velocity,
				ObservedAt:  priorRow.ObservedAt,
			}
		}
	}

	hoursSincePublished := now.Sub(raw.PublishedAt).Hours()
	if hoursSincePublished < 0 {
		hoursSincePublished = 0
	}

	result := scoring.Score(scoring.Observation{
		Temperature:         raw.Temperature,
		HoursSincePublished: hoursSincePublished,
	}, prior, now, o.clock, scoringCfg)

	history := models.DealHistory{
		ObservedAt:          now,
		Temperature:         raw.Temperature,
		HoursSincePublished: hoursSincePublished,
		Velocity:            result.Velocity,
		ViralScore:          result.ViralScore,
		FinalScore:          result.FinalScore,
	}

	dealID, err := o.store.PersistCycle(ctx, raw, history)
	if err != nil {
		return fmt.Errorf("persist cycle: %w", err)
	}

	decision := gate.Evaluate(raw.Expired, raw.Temperature, result, maxRatingNotified, gateCfg)
	if !decision.Notify {
		return nil
	}

	age := now.Sub(raw.PublishedAt)
	deal := models.Deal{
		URL: raw.URL, Title: raw.Title, Merchant: raw.Merchant, ImageURL: raw.ImageURL,
		Price: raw.Price, Discount: raw.Discount, Coupon: raw.Coupon, Description: raw.Description,
		PublishedAt: raw.PublishedAt, Expired: raw.Expired,
	}
	msg := formatter.Format(deal, raw.Temperature, result.FinalScore, result.Rating, age)

	if err := o.notifyAll(ctx, recipients, msg); err != nil {
		return fmt.Errorf("notify recipients: %w", err)
	}

	if err := o.store.CommitNotification(ctx, dealID, result.Rating); err != nil {
		return fmt.Errorf("commit notification: %w", err)
	}
	o.metrics.NotificationsSentTotal.Add(float64(len(recipients)))
	return nil
}

func (o *Orchestrator) notifyAll(ctx context.Context, recipients []string, msg models.Message) error {
	var lastErr error
	sent := 0
	for _, recipientID := range recipients {
		if err := o.notifier.Send(ctx, recipientID, msg); err != nil {
			logger.Warn("orchestrator: failed to notify %s: %v", recipientID, err)
			lastErr = err
			continue
		}
		sent++
		o.metrics.NotificationsSentTotal.Inc()
	}
	if sent == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (o *Orchestrator) notifyOperatorsOfError(ctx context.Context, cycleErr error) {
	recipients, err := o.store.ListRecipients(ctx)
	if err != nil {
		logger.Warn("orchestrator: failed to list recipients for error alert: %v", err)
		return
	}
	for _, recipientID := range recipients {
		if err := o.notifier.SendError(ctx, recipientID, cycleErr); err != nil {
			logger.Warn("orchestrator: failed to send error alert to %s: %v", recipientID, err)
		}
	}
}

func (o *Orchestrator) notifyOperatorsOfRecovery(ctx context.Context, failureCount int) {
	recipients, err := o.store.ListRecipients(ctx)
	if err != nil {
		logger.Warn("orchestrator: failed to list recipients for recovery alert: %v", err)
		return
	}
	for _, recipientID := range recipients {
		if err := o.notifier.SendRecovery(ctx, recipientID, failureCount); err != nil {
			logger.Warn("orchestrator: failed to send recovery alert to %s: %v", recipientID, err)
		}
	}
}

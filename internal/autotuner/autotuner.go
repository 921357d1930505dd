// Package autotuner periodically recomputes the viral_threshold and
// related statistics from historical outcomes (spec §4.E).
package autotuner

import (
	"context"
	"sort"
	"time"

	"github.com/promodescuentos/dealwatcher/internal/logger"
	"github.com/promodescuentos/dealwatcher/internal/storage"
	"gonum.org/v1/gonum/stat"
)

const (
	// minAgeForDataset is the 6-hour history-row age floor for dataset
	// selection (spec §4.E dataset selection).
	minAgeForDataset = 6 * time.Hour
	// minQualifyingDeals is N=10 from spec §4.E tuning 1.
	minQualifyingDeals = 10
	// winnerFloor is the ≥200° threshold a deal must reach to count as a
	// "winner" for the viral_threshold percentile.
	winnerFloor = 200.0

	viralThresholdMin = 10.0
	viralThresholdMax = 500.0
)

// checkpoints and floors for the golden-ratio report (spec §4.E tuning 2).
var (
	checkpointMinutes = []float64{15, 30, 60}
	temperatureFloors = []float64{20, 30, 50}
)

// AutoTuner reads history through Store and writes recomputed thresholds
// back to the Config Store. It never fails the caller: every error is
// logged and the prior configuration is left unchanged (spec §7
// AutoTunerFailure).
type AutoTuner struct {
	store *storage.Storage
}

// New constructs an AutoTuner bound to store.
func New(store *storage.Storage) *AutoTuner {
	return &AutoTuner{store: store}
}

// Run executes one tuning pass: recompute viral_threshold, compute and
// log the golden-ratio report, and recompute legacy velocity percentiles.
// It never returns an error — failures are logged and skipped (spec §4.E
// / §7) so a scheduler (cron, or main's startup call) can
// call it unconditionally.
func (a *AutoTuner) Run(ctx context.Context) {
	if err := a.tuneViralThreshold(ctx); err != nil {
		logger.Warn("AutoTuner: failed to recompute viral_threshold: %v", err)
	}
	if err := a.reportGoldenRatio(ctx); err != nil {
		logger.Warn("AutoTuner: failed to compute golden-ratio report: %v", err)
	}
	if err := a.tuneVelocityPercentiles(ctx); err != nil {
		logger.Warn("AutoTuner: failed to recompute velocity percentiles: %v", err)
	}
}

// tuneViralThreshold implements spec §4.E tuning 1: the 20th percentile
// of the earliest viral_score observed on deals that eventually reached
// ≥200°, clamped to [10.0, 500.0]. Leaves config unchanged if fewer than
// 10 qualifying deals exist.
func (a *AutoTuner) tuneViralThreshold(ctx context.Context) error {
	outcomes, err := a.store.TuningDataset(ctx, minAgeForDataset)
	if err != nil {
		return err
	}

	var winnerScores []float64
	for _, o := range outcomes {
		if o.PeakTemperature >= winnerFloor {
			winnerScores = append(winnerScores, o.EarliestViralScore)
		}
	}

	if len(winnerScores) < minQualifyingDeals {
		logger.Info("AutoTuner: only %d qualifying deals (need %d), leaving viral_threshold unchanged",
			len(winnerScores), minQualifyingDeals)
		return nil
	}

	sort.Float64s(winnerScores)
	p20 := stat.Quantile(0.20, stat.Empirical, winnerScores, nil)
	p20 = clamp(p20, viralThresholdMin, viralThresholdMax)

	logger.Info("AutoTuner: recomputed viral_threshold=%.2f from %d qualifying deals", p20, len(winnerScores))
	return a.store.SetConfig(ctx, "viral_threshold", p20)
}

// CheckpointReport is one row of the informational golden-ratio report
// (spec §4.E tuning 2): for a checkpoint/floor pair, how often deals that
// reached the floor by that checkpoint went on to reach 200° or 500°.
type CheckpointReport struct {
	CheckpointMinutes float64
	Floor             float64
	SampleCount       int
	Reach200Ratio     float64
	Reach500Ratio     float64
}

// reportGoldenRatio computes, for every (checkpoint, floor) pair, the
// conditional probability of eventually reaching 200° or 500°, and logs
// it as a structured report. It is informational only and never applied
// to SystemConfig (spec §9 Open Question).
func (a *AutoTuner) reportGoldenRatio(ctx context.Context) error {
	for _, cp := range checkpointMinutes {
		observations, err := a.store.CheckpointObservations(ctx, cp)
		if err != nil {
			return err
		}

		for _, floor := range temperatureFloors {
			report := buildCheckpointReport(cp, floor, observations)
			logger.Info("AutoTuner golden-ratio: checkpoint=%.0fmin floor=%.0f° n=%d P(>=200)=%.3f P(>=500)=%.3f",
				report.CheckpointMinutes, report.Floor, report.SampleCount, report.Reach200Ratio, report.Reach500Ratio)
		}
	}
	return nil
}

func buildCheckpointReport(checkpointMinutes, floor float64, observations []storage.CheckpointObservation) CheckpointReport {
	var qualifying, reach200, reach500 int
	for _, o := range observations {
		if o.Temperature < floor {
			continue
		}
		qualifying++
		if o.EverReached200 {
			reach200++
		}
		if o.EverReached500 {
			reach500++
		}
	}

	report := CheckpointReport{CheckpointMinutes: checkpointMinutes, Floor: floor, SampleCount: qualifying}
	if qualifying > 0 {
		report.Reach200Ratio = float64(reach200) / float64(qualifying)
		report.Reach500Ratio = float64(reach500) / float64(qualifying)
	}
	return report
}

// tuneVelocityPercentiles computes the legacy velocity_p50/p80/p95
// percentiles and persists them under their own config keys. The Viral
// Scorer does not read these (spec §4.E tuning 3) — they exist only for
// external consumers.
func (a *AutoTuner) tuneVelocityPercentiles(ctx context.Context) error {
	samples, err := a.store.VelocitySamples(ctx)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	sort.Float64s(samples)

	p50 := stat.Quantile(0.50, stat.Empirical, samples, nil)
	p80 := stat.Quantile(0.80, stat.Empirical, samples, nil)
	p95 := stat.Quantile(0.95, stat.Empirical, samples, nil)

	if err := a.store.SetConfig(ctx, "velocity_p50", p50); err != nil {
		return err
	}
	if err := a.store.SetConfig(ctx, "velocity_p80", p80); err != nil {
		return err
	}
	return a.store.SetConfig(ctx, "velocity_p95", p95)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

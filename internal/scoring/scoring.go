// Package scoring implements the Viral Score engine: gravity decay,
// acceleration detection, and traffic-of-day shaping. Every function here
// is pure — no I/O, no globals — so it is trivially testable and so the
// Cycle Orchestrator can call it without touching storage.
package scoring

import (
	"math"
	"time"

	"github.com/promodescuentos/dealwatcher/internal/clock"
)

// Config holds the tunable constants read from the Config Store (§4.B)
// for one scoring call.
type Config struct {
	Gravity     float64
	ScoreTier4  float64
	ScoreTier3  float64
	ScoreTier2  float64
	ViralThresh float64
}

// Observation is the current cycle's raw signal for one deal.
type Observation struct {
	Temperature         float64
	HoursSincePublished float64
}

// PriorSnapshot is the most recent history row strictly before the
// current observation (§4.A get_prior_snapshot), used to compute velocity
// deltas and acceleration.
type PriorSnapshot struct {
	Temperature float64
	Velocity    float64
	ObservedAt  time.Time
}

// Result is everything the Decision Gate and persistence layer need from
// one scoring call.
type Result struct {
	ViralScore   float64
	Velocity     float64
	Acceleration float64
	Traffic      float64
	FinalScore   float64
	Rating       int
}

// Score computes the Viral Score pipeline (spec §4.C, stages 1-6) for one
// observation. now is the wall-clock moment of this observation, used
// both to derive minutes-since-prior and to bucket traffic-of-day in
// clk's timezone.
func Score(obs Observation, prior *PriorSnapshot, now time.Time, clk clock.Clock, cfg Config) Result {
	t := obs.Temperature
	h := obs.HoursSincePublished

	// Stage 1: gravity-decayed viral score. t < 1 clamps to zero.
	var viralScore float64
	if t >= 1 {
		viralScore = (t - 1) / math.Pow(h+0.1, cfg.Gravity)
	}

	// Stage 2: linear velocity (temperature per minute).
	velocityNow := velocity(t, h, prior, now)

	// Stage 3: acceleration multiplier.
	acceleration := accelerationMultiplier(velocityNow, prior)

	// Stage 4: traffic-of-day multiplier (local hour in Mexico City).
	traffic := trafficMultiplier(now.In(clk.Location()).Hour())

	// Stage 5: final score.
	finalScore := viralScore * acceleration * traffic

	// Stage 6: rating tier.
	rating := rate(finalScore, cfg)

	return Result{
		ViralScore:   viralScore,
		Velocity:     velocityNow,
		Acceleration: acceleration,
		Traffic:      traffic,
		FinalScore:   finalScore,
		Rating:       rating,
	}
}

func velocity(t, hoursSincePublished float64, prior *PriorSnapshot, now time.Time) float64 {
	if prior == nil {
		minutesSincePublished := hoursSincePublished * 60
		return t / math.Max(minutesSincePublished, 1.0)
	}
	minutesBetween := now.Sub(prior.ObservedAt).Minutes()
	return (t - prior.Temperature) / math.Max(minutesBetween, 1.0)
}

func accelerationMultiplier(velocityNow float64, prior *PriorSnapshot) float64 {
	if prior == nil || prior.Velocity <= 0 {
		return 1.0
	}
	r := velocityNow / prior.Velocity
	switch {
	case r >= 2.0:
		return 2.0
	case r >= 1.0:
		return 1.0 + (r - 1.0)
	case r >= 0.5:
		return 1.0
	default:
		return 0.5
	}
}

func trafficMultiplier(hour int) float64 {
	switch {
	case hour >= 0 && hour < 7:
		return 1.5
	case hour >= 7 && hour < 9:
		return 1.2
	case hour >= 9 && hour < 22:
		return 1.0
	default: // 22:00-23:59
		return 1.3
	}
}

func rate(finalScore float64, cfg Config) int {
	switch {
	case finalScore >= cfg.ScoreTier4:
		return 4
	case finalScore >= cfg.ScoreTier3:
		return 3
	case finalScore >= cfg.ScoreTier2:
		return 2
	case finalScore >= cfg.ViralThresh:
		return 1
	default:
		return 0
	}
}

// Package gate implements the progressive-rating notification gate
// (spec §4.D): a pure decision function that decides whether a freshly
// scored deal should be notified, without performing the notify or
// persist side effects itself — those belong to the orchestrator.
package gate

import "github.com/promodescuentos/dealwatcher/internal/scoring"

// Config holds the anti-noise thresholds the gate checks against.
type Config struct {
	MinSeedTemp float64
}

// Decision is the gate's verdict for one scored deal.
type Decision struct {
	Notify bool
	Reason string // why Notify is false; empty when Notify is true
}

// Evaluate applies the five-step filter from spec §4.D:
//  1. expired -> drop
//  2. temperature below the seed floor -> drop
//  3. rating 0 -> drop
//  4. rating no greater than what was already notified -> drop
//  5. otherwise -> notify
func Evaluate(expired bool, temperature float64, result scoring.Result, maxRatingNotified int, cfg Config) Decision {
	if expired {
		return Decision{Notify: false, Reason: "expired"}
	}
	if temperature < cfg.MinSeedTemp {
		return Decision{Notify: false, Reason: "below seed temperature"}
	}
	if result.Rating == 0 {
		return Decision{Notify: false, Reason: "rating below viral threshold"}
	}
	if result.Rating <= maxRatingNotified {
		return Decision{Notify: false, Reason: "rating not an upgrade over last notification"}
	}
	return Decision{Notify: true}
}

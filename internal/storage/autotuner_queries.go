package storage

import (
	"context"
	"fmt"
	"time"
)

// DealOutcome summarizes one deal's recorded history for AutoTuner
// dataset selection (spec §4.E).
type DealOutcome struct {
	DealID            string
	EarliestObservedAt time.Time
	EarliestViralScore float64
	PeakTemperature    float64
	EarliestVelocity   float64
}

// TuningDataset returns, for every deal with at least one history row
// older than minAge, its earliest observation and peak temperature —
// the inputs AutoTuner needs to classify "successful at X°" deals
// (spec §4.E dataset selection).
func (s *Storage) TuningDataset(ctx context.Context, minAge time.Duration) ([]DealOutcome, error) {
	cutoff := time.Now().Add(-minAge).UnixNano()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			dh.deal_id,
			MIN(dh.observed_at) AS earliest_at,
			MAX(dh.temperature) AS peak_temperature
		FROM deal_history dh
		WHERE dh.deal_id IN (
			SELECT DISTINCT deal_id FROM deal_history WHERE observed_at < ?
		)
		GROUP BY dh.deal_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query tuning dataset: %w", err)
	}
	defer rows.Close()

	var outcomes []DealOutcome
	for rows.Next() {
		var o DealOutcome
		var earliestAtNano int64
		if err := rows.Scan(&o.DealID, &earliestAtNano, &o.PeakTemperature); err != nil {
			return nil, fmt.Errorf("failed to scan tuning row: %w", err)
		}
		o.EarliestObservedAt = time.Unix(0, earliestAtNano)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fill in each outcome's earliest viral_score/velocity (the row at
	// earliest_at), a second pass to keep the aggregate query simple.
	for i := range outcomes {
		row := s.db.QueryRowContext(ctx, `
			SELECT viral_score, velocity FROM deal_history
			WHERE deal_id = ? AND observed_at = (
				SELECT MIN(observed_at) FROM deal_history WHERE deal_id = ?
			)
			LIMIT 1`, outcomes[i].DealID, outcomes[i].DealID)
		if err := row.Scan(&outcomes[i].EarliestViralScore, &outcomes[i].EarliestVelocity); err != nil {
			return nil, fmt.Errorf("failed to scan earliest score for %s: %w", outcomes[i].DealID, err)
		}
	}

	return outcomes, nil
}

// CheckpointObservation is one deal's temperature at or shortly after a
// fixed checkpoint offset since publication, used for the golden-ratio
// report (spec §4.E tuning 2).
type CheckpointObservation struct {
	DealID      string
	Temperature float64
	EverReached200 bool
	EverReached500 bool
}

// CheckpointObservations returns, for every deal, its temperature at the
// first history row whose hours_since_published is >= the checkpoint
// (given in minutes), alongside whether that deal reached 200° or 500°
// in any of its history rows.
func (s *Storage) CheckpointObservations(ctx context.Context, checkpointMinutes float64) ([]CheckpointObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			dh.deal_id,
			dh.temperature AS checkpoint_temp
		FROM deal_history dh
		WHERE dh.hours_since_published >= ? / 60.0
		AND dh.observed_at = (
			SELECT MIN(observed_at) FROM deal_history
			WHERE deal_id = dh.deal_id AND hours_since_published >= ? / 60.0
		)
		GROUP BY dh.deal_id`, checkpointMinutes, checkpointMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint observations: %w", err)
	}
	defer rows.Close()

	var obs []CheckpointObservation
	for rows.Next() {
		var o CheckpointObservation
		if err := rows.Scan(&o.DealID, &o.Temperature); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range obs {
		row := s.db.QueryRowContext(ctx, `SELECT MAX(temperature) FROM deal_history WHERE deal_id = ?`, obs[i].DealID)
		var peak float64
		if err := row.Scan(&peak); err != nil {
			return nil, fmt.Errorf("failed to scan peak for %s: %w", obs[i].DealID, err)
		}
		obs[i].EverReached200 = peak >= 200
		obs[i].EverReached500 = peak >= 500
	}

	return obs, nil
}

// VelocitySamples returns every recorded velocity value, for the legacy
// velocity_p50/p80/p95 percentiles (spec §4.E tuning 3).
func (s *Storage) VelocitySamples(ctx context.Context) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT velocity FROM deal_history`)
	if err != nil {
		return nil, fmt.Errorf("failed to query velocity samples: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan velocity sample: %w", err)
		}
		samples = append(samples, v)
	}
	return samples, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// HasConfig reports whether key has an explicit row in system_config,
// as opposed to falling back to SeedDefaults.
func (s *Storage) HasConfig(ctx context.Context, key string) (bool, error) {
	var value float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check config key %s: %w", key, err)
	}
	return true, nil
}

// GetConfig returns the stored value for key, or its seed default if the
// key is missing (spec §4.B read-through, §3 invariant). Unknown keys
// (not in SeedDefaults) fall back to 0 if also unset.
func (s *Storage) GetConfig(ctx context.Context, key string) (float64, error) {
	var value float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		if def, ok := SeedDefaults[key]; ok {
			return def, nil
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read config key %s: %w", key, err)
	}
	return value, nil
}

// SetConfig writes key=value and commits immediately.
func (s *Storage) SetConfig(ctx context.Context, key string, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write config key %s: %w", key, err)
	}
	return nil
}

// LoadScoringConfig reads the subset of SystemConfig the Viral Scorer
// needs, applying seed defaults for anything missing.
func (s *Storage) LoadScoringConfig(ctx context.Context) (gravity, tier4, tier3, tier2, viralThreshold, minSeedTemp float64, err error) {
	get := func(key string) (float64, error) { return s.GetConfig(ctx, key) }

	if gravity, err = get("gravity"); err != nil {
		return
	}
	if tier4, err = get("score_tier_4"); err != nil {
		return
	}
	if tier3, err = get("score_tier_3"); err != nil {
		return
	}
	if tier2, err = get("score_tier_2"); err != nil {
		return
	}
	if viralThreshold, err = get("viral_threshold"); err != nil {
		return
	}
	if minSeedTemp, err = get("min_seed_temp"); err != nil {
		return
	}
	return
}

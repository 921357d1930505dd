package gate

import (
	"testing"

	"github.com/promodescuentos/dealwatcher/internal/scoring"
)

func cfg() Config {
	return Config{MinSeedTemp: 15.0}
}

func TestEvaluate_Expired(t *testing.T) {
	d := Evaluate(true, 50, scoring.Result{Rating: 3}, 0, cfg())
	if d.Notify {
		t.Error("expired deal must not notify")
	}
}

func TestEvaluate_BelowSeed(t *testing.T) {
	d := Evaluate(false, 14.999, scoring.Result{Rating: 3}, 0, cfg())
	if d.Notify {
		t.Error("temperature below seed floor must not notify")
	}
}

func TestEvaluate_AtSeedBoundaryPasses(t *testing.T) {
	d := Evaluate(false, 15.0, scoring.Result{Rating: 1}, 0, cfg())
	if !d.Notify {
		t.Error("t=15 exactly should pass the seed filter")
	}
}

func TestEvaluate_RatingZero(t *testing.T) {
	d := Evaluate(false, 50, scoring.Result{Rating: 0}, 0, cfg())
	if d.Notify {
		t.Error("rating 0 must not notify")
	}
}

func TestEvaluate_ProgressiveUpgrade(t *testing.T) {
	// already notified at rating 2; same rating again must not re-notify.
	d := Evaluate(false, 50, scoring.Result{Rating: 2}, 2, cfg())
	if d.Notify {
		t.Error("same rating as already notified must not re-notify")
	}

	// upgrade to rating 3 must notify.
	d = Evaluate(false, 50, scoring.Result{Rating: 3}, 2, cfg())
	if !d.Notify {
		t.Error("rating upgrade must notify")
	}
}

func TestEvaluate_UnderSeedNoise(t *testing.T) {
	// Scenario 5 from spec §8.
	d := Evaluate(false, 10, scoring.Result{Rating: 0}, 0, cfg())
	if d.Notify {
		t.Error("t=10 under seed temp must not notify")
	}
}

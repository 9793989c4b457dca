package retrieval

import (
	"math"
	"testing"
	"time"
)

func TestDecay_BoundaryScenarios(t *testing.T) {
	// spec §8: half_life=90, floor=0.3; days_since=0 -> ~1.0,
	// days_since=90 -> ~0.5, days_since=3650 -> 0.3.
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		daysSince int
		want      float64
		tolerance float64
	}{
		{0, 1.0, 0.01},
		{90, 0.5, 0.01},
		{3650, 0.3, 0.0001},
	}
	for _, c := range cases {
		ref := now.AddDate(0, 0, -c.daysSince).Format(dayLayout)
		got := decay(true, ref, 90, 0.3, now)
		if math.Abs(got-c.want) > c.tolerance {
			t.Errorf("decay(days_since=%d) = %v, want ~%v", c.daysSince, got, c.want)
		}
	}
}

func TestDecay_Disabled(t *testing.T) {
	if got := decay(false, "2020-01-01", 90, 0.3, time.Now()); got != 1 {
		t.Errorf("decay(disabled) = %v, want 1", got)
	}
}

func TestDecay_MonotonicAndFloored(t *testing.T) {
	now := time.Now()
	prev := 2.0
	for _, days := range []int{0, 30, 90, 365, 3650, 100000} {
		ref := now.AddDate(0, 0, -days).Format(dayLayout)
		got := decay(true, ref, 90, 0.3, now)
		if got > prev {
			t.Errorf("decay not monotonically non-increasing at days=%d: %v > %v", days, got, prev)
		}
		if got < 0.3 || got > 1 {
			t.Errorf("decay out of [floor, 1] range at days=%d: %v", days, got)
		}
		prev = got
	}
}

func TestConfidenceBoost(t *testing.T) {
	if got := confidenceBoost("confirmed", 1.2); got != 1.2 {
		t.Errorf("confidenceBoost(confirmed) = %v, want 1.2", got)
	}
	if got := confidenceBoost("experimental", 1.2); got != 1 {
		t.Errorf("confidenceBoost(experimental) = %v, want 1", got)
	}
}

func TestReferenceDate_Precedence(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if got := referenceDate("2026-01-01", "2025-01-01", now); got != "2026-01-01" {
		t.Errorf("expected last_retrieved to win, got %s", got)
	}
	if got := referenceDate("", "2025-01-01", now); got != "2025-01-01" {
		t.Errorf("expected created fallback, got %s", got)
	}
	if got := referenceDate("", "", now); got != now.Format(dayLayout) {
		t.Errorf("expected today fallback, got %s", got)
	}
}

package retrieval

import (
	"math"
	"time"
)

const dayLayout = "2006-01-02"

// decay computes the exponential recency discount for a note last touched
// referenceDate, relative to now (spec §4.5 step 6). Disabled decay always
// returns 1; a reference date that fails to parse also returns 1, treating
// an unknown date as "just retrieved" rather than penalizing it.
func decay(enabled bool, referenceDate string, halfLifeDays, floor float64, now time.Time) float64 {
	if !enabled {
		return 1
	}
	ref, err := time.Parse(dayLayout, referenceDate)
	if err != nil {
		return 1
	}
	daysSince := now.Sub(ref).Hours() / 24
	if daysSince <= 0 {
		return 1
	}
	if halfLifeDays <= 0 {
		return floor
	}
	value := math.Exp(-daysSince * math.Ln2 / halfLifeDays)
	if value < floor {
		return floor
	}
	return value
}

// confidenceBoost returns boost iff confidence == "confirmed", else 1 (spec
// §4.5 step 6).
func confidenceBoost(confidence string, boost float64) float64 {
	if confidence == "confirmed" {
		return boost
	}
	return 1
}

// referenceDate picks the decay reference per spec §4.5 step 6: last
// retrieved, else created, else today.
func referenceDate(lastRetrieved, created string, now time.Time) string {
	if lastRetrieved != "" {
		return lastRetrieved
	}
	if created != "" {
		return created
	}
	return now.Format(dayLayout)
}

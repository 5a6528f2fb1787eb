// Package scoring computes the confidence score for a (provider, plan) pair.
// Score is a pure function: every input is an explicit parameter, there is no
// clock and no store access inside it, so identical inputs always produce
// identical outputs.
package scoring

import "covercheck/internal/verification/models"

// Level is the qualitative confidence bucket shown to consumers.
type Level string

const (
	LevelVeryLow  Level = "VERY_LOW"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelVeryHigh Level = "VERY_HIGH"
)

// Specialty half-life thresholds in days. Acceptance churns fast in some
// specialties (networks renegotiate constantly) and slowly in others; the
// recency band is computed against the matching threshold.
const (
	HighChurnThresholdDays = 30
	DefaultThresholdDays   = 60
	LowChurnThresholdDays  = 90
)

var specialtyThresholds = map[string]int{
	"behavioral_health": HighChurnThresholdDays,
	"urgent_care":       HighChurnThresholdDays,
	"dermatology":       HighChurnThresholdDays,
	"anesthesiology":    LowChurnThresholdDays,
	"pathology":         LowChurnThresholdDays,
	"radiology":         LowChurnThresholdDays,
}

// ThresholdDays returns the recency half-life threshold for a specialty.
func ThresholdDays(specialty string) int {
	if t, ok := specialtyThresholds[specialty]; ok {
		return t
	}
	return DefaultThresholdDays
}

// Inputs are the explicit parameters of one score computation. The caller
// supplies AgeInDays computed from its own clock.
type Inputs struct {
	Provenance        models.Provenance
	AgeInDays         int
	Specialty         string
	VerificationCount int
	Upvotes           int
	Downvotes         int
}

// Score combines provenance, recency, verification count, and vote agreement
// into a 0-100 confidence score and a capped qualitative level.
func Score(in Inputs) (int, Level) {
	total := sourceScore(in.Provenance) +
		recencyScore(in.AgeInDays, ThresholdDays(in.Specialty)) +
		verificationScore(in.VerificationCount) +
		agreementScore(in.Upvotes, in.Downvotes)
	if total > 100 {
		total = 100
	}
	return total, level(total, in.VerificationCount)
}

func sourceScore(p models.Provenance) int {
	switch p {
	case models.ProvenanceGovernment:
		return 25
	case models.ProvenanceCarrier:
		return 20
	case models.ProvenanceCommunity:
		return 15
	default:
		return 10
	}
}

// recencyScore bands claim age against the specialty threshold T:
// <=50% of T -> 30, <=100% -> 20, <=150% -> 10, <=180% -> 5, beyond -> 0.
func recencyScore(ageInDays, thresholdDays int) int {
	if ageInDays < 0 {
		ageInDays = 0
	}
	pct := float64(ageInDays) / float64(thresholdDays)
	switch {
	case pct <= 0.5:
		return 30
	case pct <= 1.0:
		return 20
	case pct <= 1.5:
		return 10
	case pct <= 1.8:
		return 5
	default:
		return 0
	}
}

// verificationScore steps with the number of live claims and saturates at 3;
// piling on more confirmations buys nothing past that.
func verificationScore(count int) int {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return 10
	case count == 2:
		return 15
	default:
		return 25
	}
}

func agreementScore(upvotes, downvotes int) int {
	total := upvotes + downvotes
	if total == 0 {
		return 0
	}
	ratio := float64(upvotes) / float64(total)
	switch {
	case ratio == 1.0:
		return 20
	case ratio >= 0.8:
		return 15
	case ratio >= 0.6:
		return 10
	case ratio >= 0.4:
		return 5
	default:
		return 0
	}
}

// level buckets the numeric score. A pair with fewer than 3 verifications is
// capped at MEDIUM regardless of the raw score, so a single high-provenance
// source can never present as highly verified.
func level(score, verificationCount int) Level {
	var l Level
	switch {
	case score <= 25:
		l = LevelVeryLow
	case score <= 50:
		l = LevelLow
	case score <= 75:
		l = LevelMedium
	case score <= 90:
		l = LevelHigh
	default:
		l = LevelVeryHigh
	}
	if verificationCount < 3 && (l == LevelHigh || l == LevelVeryHigh) {
		l = LevelMedium
	}
	return l
}

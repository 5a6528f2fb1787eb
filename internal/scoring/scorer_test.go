package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covercheck/internal/verification/models"
)

func TestScore(t *testing.T) {
	t.Run("fresh government claim with full agreement maxes out", func(t *testing.T) {
		score, level := Score(Inputs{
			Provenance:        models.ProvenanceGovernment,
			AgeInDays:         0,
			VerificationCount: 3,
			Upvotes:           5,
		})
		assert.Equal(t, 100, score)
		assert.Equal(t, LevelVeryHigh, level)
	})

	t.Run("single fresh community claim lands in the middle", func(t *testing.T) {
		score, level := Score(Inputs{
			Provenance:        models.ProvenanceCommunity,
			AgeInDays:         0,
			VerificationCount: 1,
		})
		// 15 source + 30 recency + 10 verification + 0 agreement
		assert.Equal(t, 55, score)
		assert.Equal(t, LevelMedium, level)
	})

	t.Run("stale claim with no votes scores very low", func(t *testing.T) {
		score, level := Score(Inputs{
			Provenance:        models.ProvenanceUnknown,
			AgeInDays:         200,
			VerificationCount: 1,
		})
		// 10 source + 0 recency + 10 verification
		assert.Equal(t, 20, score)
		assert.Equal(t, LevelVeryLow, level)
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		in := Inputs{
			Provenance:        models.ProvenanceCarrier,
			AgeInDays:         45,
			Specialty:         "dermatology",
			VerificationCount: 2,
			Upvotes:           3,
			Downvotes:         1,
		}
		s1, l1 := Score(in)
		s2, l2 := Score(in)
		assert.Equal(t, s1, s2)
		assert.Equal(t, l1, l2)
	})

	t.Run("score stays within 0-100 across the input space", func(t *testing.T) {
		provenances := []models.Provenance{
			models.ProvenanceGovernment, models.ProvenanceCarrier,
			models.ProvenanceCommunity, models.ProvenanceUnknown,
		}
		for _, p := range provenances {
			for _, age := range []int{-5, 0, 15, 30, 60, 90, 108, 120, 500} {
				for _, count := range []int{0, 1, 2, 3, 10} {
					for _, up := range []int{0, 1, 5} {
						for _, down := range []int{0, 1, 5} {
							score, _ := Score(Inputs{
								Provenance:        p,
								AgeInDays:         age,
								VerificationCount: count,
								Upvotes:           up,
								Downvotes:         down,
							})
							require.GreaterOrEqual(t, score, 0)
							require.LessOrEqual(t, score, 100)
						}
					}
				}
			}
		}
	})
}

func TestSourceScore(t *testing.T) {
	assert.Equal(t, 25, sourceScore(models.ProvenanceGovernment))
	assert.Equal(t, 20, sourceScore(models.ProvenanceCarrier))
	assert.Equal(t, 15, sourceScore(models.ProvenanceCommunity))
	assert.Equal(t, 10, sourceScore(models.ProvenanceUnknown))
}

func TestRecencyScore(t *testing.T) {
	tests := []struct {
		name      string
		age       int
		threshold int
		want      int
	}{
		{"fresh claim", 0, 60, 30},
		{"half the threshold", 30, 60, 30},
		{"exactly at threshold", 60, 60, 20},
		{"one and a half thresholds", 90, 60, 10},
		{"approaching double", 108, 60, 5},
		{"beyond 180 percent", 120, 60, 0},
		{"negative age treated as fresh", -3, 60, 30},
		{"high churn specialty ages faster", 30, 30, 20},
		{"low churn specialty ages slower", 45, 90, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recencyScore(tt.age, tt.threshold))
		})
	}
}

func TestThresholdDays(t *testing.T) {
	assert.Equal(t, HighChurnThresholdDays, ThresholdDays("behavioral_health"))
	assert.Equal(t, HighChurnThresholdDays, ThresholdDays("urgent_care"))
	assert.Equal(t, LowChurnThresholdDays, ThresholdDays("radiology"))
	assert.Equal(t, DefaultThresholdDays, ThresholdDays("cardiology"))
	assert.Equal(t, DefaultThresholdDays, ThresholdDays(""))
}

func TestVerificationScore(t *testing.T) {
	assert.Equal(t, 0, verificationScore(0))
	assert.Equal(t, 10, verificationScore(1))
	assert.Equal(t, 15, verificationScore(2))
	assert.Equal(t, 25, verificationScore(3))

	t.Run("saturates past three claims", func(t *testing.T) {
		assert.Equal(t, verificationScore(3), verificationScore(50))
	})
}

func TestAgreementScore(t *testing.T) {
	tests := []struct {
		name string
		up   int
		down int
		want int
	}{
		{"no votes is neutral", 0, 0, 0},
		{"unanimous agreement", 5, 0, 20},
		{"strong agreement", 4, 1, 15},
		{"moderate agreement", 3, 2, 10},
		{"weak agreement", 2, 3, 5},
		{"strong disagreement", 1, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, agreementScore(tt.up, tt.down))
		})
	}
}

func TestLevelCap(t *testing.T) {
	t.Run("high raw score with two verifications is capped at medium", func(t *testing.T) {
		// 25 source + 30 recency + 15 verification + 20 agreement = 90
		score, level := Score(Inputs{
			Provenance:        models.ProvenanceGovernment,
			AgeInDays:         0,
			VerificationCount: 2,
			Upvotes:           4,
		})
		assert.Equal(t, 90, score)
		assert.Equal(t, LevelMedium, level)
	})

	t.Run("same score with three verifications is not capped", func(t *testing.T) {
		score, level := Score(Inputs{
			Provenance:        models.ProvenanceCarrier,
			AgeInDays:         0,
			VerificationCount: 3,
			Upvotes:           4,
			Downvotes:         1,
		})
		// 20 + 30 + 25 + 15 = 90
		assert.Equal(t, 90, score)
		assert.Equal(t, LevelHigh, level)
	})
}

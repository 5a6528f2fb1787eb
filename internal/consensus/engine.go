// Package consensus decides the acceptance status of a (provider, plan) pair
// from its live claim set. The state machine is a pure function; the service
// around it handles store access and per-pair serialization.
package consensus

import "covercheck/internal/verification/models"

// Promotion thresholds: a pair is only CONFIRMED or REJECTED once it has at
// least MinVerifications live claims, a confidence score of at least
// MinConfidenceScore, and a majority at least MajorityRatio to one.
const (
	MinVerifications   = 3
	MinConfidenceScore = 60
	MajorityRatio      = 2.0
)

// EvaluateInput carries everything the state machine looks at.
type EvaluateInput struct {
	Prev    models.Status // prior pair status; StatusPending for a new pair
	Accepts int           // live claims asserting acceptance
	Rejects int           // live claims asserting non-acceptance
	Score   int           // current confidence score
}

// Evaluate returns the next status for a pair.
//
// Transitions are monotonic - a pair that reached CONFIRMED or REJECTED never
// falls back to PENDING - with one exception: CONFLICTING is re-enterable
// whenever later evidence genuinely splits an established majority. The very
// first claim for a pair always yields PENDING, whatever its provenance or
// score, so a single source can never instantly confirm a pair.
func Evaluate(in EvaluateInput) models.Status {
	total := in.Accepts + in.Rejects
	if total == 0 {
		return models.StatusPending
	}

	if total >= MinVerifications && in.Score >= MinConfidenceScore {
		switch {
		case in.Rejects == 0:
			return models.StatusConfirmed
		case in.Accepts == 0:
			return models.StatusRejected
		}
		majority, minority := in.Accepts, in.Rejects
		winner := models.StatusConfirmed
		if in.Rejects > in.Accepts {
			majority, minority = in.Rejects, in.Accepts
			winner = models.StatusRejected
		}
		if float64(majority)/float64(minority) >= MajorityRatio {
			return winner
		}
		return models.StatusConflicting
	}

	// Evidence bar not met. A pair that never got past PENDING stays there;
	// an established status survives unless the live set now contradicts it.
	switch in.Prev {
	case models.StatusConfirmed, models.StatusRejected:
		if in.Accepts > 0 && in.Rejects > 0 && !majorityHolds(in.Accepts, in.Rejects) {
			return models.StatusConflicting
		}
		return in.Prev
	case models.StatusConflicting:
		return models.StatusConflicting
	default:
		return models.StatusPending
	}
}

func majorityHolds(accepts, rejects int) bool {
	majority, minority := accepts, rejects
	if rejects > accepts {
		majority, minority = rejects, accepts
	}
	if minority == 0 {
		return true
	}
	return float64(majority)/float64(minority) >= MajorityRatio
}

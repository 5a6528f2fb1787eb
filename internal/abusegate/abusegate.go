// Package abusegate wraps the external bot-score provider and the honeypot
// check behind thin contracts the submission path consumes. The gate is
// fail-open by policy: when the provider is unavailable the caller does not
// block traffic outright, it substitutes a much stricter admission tier.
package abusegate

import (
	"context"
	"errors"
	"strings"

	"covercheck/pkg/sentinel"
)

// DefaultScoreThreshold rejects submissions scoring below it.
const DefaultScoreThreshold = 0.5

// Evaluator scores an abuse-gate token in [0,1]; higher means more likely
// human. Implementations return sentinel.ErrUnavailable (possibly wrapped)
// when the upstream provider cannot be reached.
type Evaluator interface {
	Evaluate(ctx context.Context, token string) (float64, error)
}

// Decision is the gate's verdict on one submission.
type Decision int

const (
	// DecisionAllow admits the submission.
	DecisionAllow Decision = iota
	// DecisionReject refuses it; surfaced to the caller as a generic
	// rejection with no detail about the mechanism.
	DecisionReject
	// DecisionFallback admits only under the stricter fallback admission
	// tier because the provider is unavailable.
	DecisionFallback
)

// Gate applies the threshold policy over an Evaluator.
type Gate struct {
	evaluator Evaluator
	threshold float64
}

// NewGate builds a gate with the given evaluator. threshold <= 0 selects the
// default.
func NewGate(evaluator Evaluator, threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	return &Gate{evaluator: evaluator, threshold: threshold}
}

// Check evaluates a token and returns the policy decision. A nil evaluator
// (gate not configured) allows everything; deployments without a provider
// still get admission limits and the sybil guard.
func (g *Gate) Check(ctx context.Context, token string) (Decision, float64, error) {
	if g == nil || g.evaluator == nil {
		return DecisionAllow, 1, nil
	}
	score, err := g.evaluator.Evaluate(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return DecisionFallback, 0, nil
		}
		return DecisionReject, 0, err
	}
	if score < g.threshold {
		return DecisionReject, score, nil
	}
	return DecisionAllow, score, nil
}

// HoneypotTripped reports whether the hidden form field was filled in. Humans
// never see the field; bots that fill it get a silent discard, not an error,
// so they cannot probe the defense.
func HoneypotTripped(hiddenField string) bool {
	return strings.TrimSpace(hiddenField) != ""
}

// Package submission orchestrates the inbound trust pipeline: admission
// counter, abuse gate, sybil guard, claim persistence, then the consensus
// recompute. Every rejection surfaces as one of the documented domain codes.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"covercheck/internal/abusegate"
	admissionconfig "covercheck/internal/admission/config"
	admissionmodels "covercheck/internal/admission/models"
	"covercheck/internal/scoring"
	"covercheck/internal/sybil"
	"covercheck/internal/verification/models"
	"covercheck/internal/verification/store"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/requestcontext"
)

// DefaultClaimTTL is how long a claim stays live before the retention job
// reaps it. Matches the score decay floor at the default 60-day specialty
// threshold (180% of 60 days, times the verification saturation factor).
const DefaultClaimTTL = 180 * 24 * time.Hour

// Admitter is the admission counter contract the pipeline consumes.
type Admitter interface {
	Check(ctx context.Context, identity, tier string) (*admissionmodels.Result, error)
}

// Recomputer re-derives the pair aggregate after a claim insert.
type Recomputer interface {
	Recompute(ctx context.Context, pair models.PairKey) (*models.AcceptanceAggregate, error)
}

// Request is one inbound submission, already reduced to opaque identities.
type Request struct {
	ProviderKey    string
	PlanKey        string
	Accepted       bool
	Provenance     models.Provenance
	Specialty      string
	Identities     sybil.Identities
	AbuseGateToken string
	// HoneypotField is the raw hidden form field. Non-empty means a bot.
	HoneypotField string
}

// SubmitResult is what the caller gets back. For honeypot hits it is
// synthetic: indistinguishable from success, backed by nothing.
type SubmitResult struct {
	ClaimID         uuid.UUID
	Status          models.Status
	ConfidenceScore int
	Degraded        bool
}

// Service is the submission pipeline.
type Service struct {
	claims     store.ClaimStore
	admitter   Admitter
	gate       *abusegate.Gate
	guard      *sybil.Guard
	recomputer Recomputer
	claimTTL   time.Duration
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClaimTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.claimTTL = ttl
	}
}

// WithAbuseGate attaches the bot-score gate; without it submissions skip the
// score check but keep admission and sybil control.
func WithAbuseGate(gate *abusegate.Gate) Option {
	return func(s *Service) {
		s.gate = gate
	}
}

func New(
	claims store.ClaimStore,
	admitter Admitter,
	guard *sybil.Guard,
	recomputer Recomputer,
	opts ...Option,
) (*Service, error) {
	if claims == nil {
		return nil, fmt.Errorf("claim store is required")
	}
	if admitter == nil {
		return nil, fmt.Errorf("admitter is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("sybil guard is required")
	}
	if recomputer == nil {
		return nil, fmt.Errorf("recomputer is required")
	}

	svc := &Service{
		claims:     claims,
		admitter:   admitter,
		guard:      guard,
		recomputer: recomputer,
		claimTTL:   DefaultClaimTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit runs the full admission pipeline for one claim.
func (s *Service) Submit(ctx context.Context, req Request) (*SubmitResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	admit, err := s.admitter.Check(ctx, req.Identities.Network, admissionconfig.TierSubmit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "admission check failed")
	}
	if !admit.Allowed {
		s.metrics.ObserveOutcome("rate_limited")
		return nil, dErrors.Newf(dErrors.CodeRateLimited,
			"submission limit reached, retry after %s", admit.ResetAt.UTC().Format(time.RFC3339))
	}
	degraded := admit.Degraded

	// Honeypot hits spend admission budget like every other request, then
	// are swallowed before the abuse gate sees them: nothing is persisted,
	// and the response carries the score a real first claim would, so
	// probing the field tells the bot nothing.
	if abusegate.HoneypotTripped(req.HoneypotField) {
		s.metrics.ObserveOutcome("honeypot")
		s.logAudit(ctx, "honeypot_discard",
			"identity", req.Identities.Network,
			"provider_key", req.ProviderKey,
			"plan_key", req.PlanKey,
		)
		score, _ := scoring.Score(scoring.Inputs{
			Provenance:        req.Provenance,
			Specialty:         req.Specialty,
			VerificationCount: 1,
		})
		return &SubmitResult{
			ClaimID:         uuid.New(),
			Status:          models.StatusPending,
			ConfidenceScore: score,
			Degraded:        degraded,
		}, nil
	}

	decision, score, err := s.gate.Check(ctx, req.AbuseGateToken)
	if err != nil {
		s.metrics.ObserveOutcome("abuse_rejected")
		return nil, dErrors.New(dErrors.CodeRejected, "submission rejected")
	}
	switch decision {
	case abusegate.DecisionReject:
		s.metrics.ObserveOutcome("abuse_rejected")
		s.logAudit(ctx, "abuse_gate_rejected",
			"identity", req.Identities.Network,
			"score", score,
		)
		return nil, dErrors.New(dErrors.CodeRejected, "submission rejected")
	case abusegate.DecisionFallback:
		// Provider outage: fail open, but only under the stricter tier.
		fallback, err := s.admitter.Check(ctx, req.Identities.Network, admissionconfig.TierAbuseFallback)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fallback admission check failed")
		}
		if !fallback.Allowed {
			s.metrics.ObserveOutcome("rate_limited")
			return nil, dErrors.Newf(dErrors.CodeRateLimited,
				"submission limit reached, retry after %s", fallback.ResetAt.UTC().Format(time.RFC3339))
		}
		degraded = degraded || fallback.Degraded
		s.logAudit(ctx, "abuse_gate_fallback",
			"identity", req.Identities.Network,
		)
	}

	dup, err := s.guard.IsDuplicate(ctx, req.Identities, req.ProviderKey, req.PlanKey)
	if err != nil {
		return nil, err
	}
	if dup {
		s.metrics.ObserveOutcome("duplicate")
		return nil, dErrors.New(dErrors.CodeConflict, "a recent claim from this identity already exists for this provider and plan")
	}

	now := requestcontext.Now(ctx)
	claim := &models.VerificationClaim{
		ID:              uuid.New(),
		ProviderKey:     req.ProviderKey,
		PlanKey:         req.PlanKey,
		Accepted:        req.Accepted,
		Provenance:      req.Provenance,
		Specialty:       req.Specialty,
		NetworkIdentity: req.Identities.Network,
		ContactIdentity: req.Identities.Contact,
		Status:          models.StatusPending,
		SubmittedAt:     now,
		ExpiresAt:       now.Add(s.claimTTL),
	}
	if err := s.claims.InsertClaim(ctx, claim); err != nil {
		// A claim must never be half-written; persistence failure here is fatal.
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist claim")
	}
	s.guard.Record(req.Identities, req.ProviderKey, req.PlanKey, now)

	agg, err := s.recomputer.Recompute(ctx, models.PairKey{ProviderKey: req.ProviderKey, PlanKey: req.PlanKey})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveOutcome("accepted")
	s.logAudit(ctx, "claim_submitted",
		"claim_id", claim.ID.String(),
		"provider_key", req.ProviderKey,
		"plan_key", req.PlanKey,
		"provenance", string(req.Provenance),
		"accepted", req.Accepted,
	)

	return &SubmitResult{
		ClaimID:         claim.ID,
		Status:          agg.Status,
		ConfidenceScore: agg.ConfidenceScore,
		Degraded:        degraded,
	}, nil
}

func validate(req Request) error {
	if req.ProviderKey == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "provider_key is required")
	}
	if req.PlanKey == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "plan_key is required")
	}
	if req.Identities.Network == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "network identity is required")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

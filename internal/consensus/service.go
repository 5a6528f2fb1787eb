package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"covercheck/internal/consensus/metrics"
	"covercheck/internal/scoring"
	"covercheck/internal/verification/models"
	"covercheck/internal/verification/store"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/requestcontext"
	"covercheck/pkg/sentinel"
)

// Store is the persistence surface the consensus service needs.
type Store interface {
	store.ClaimStore
	store.VoteStore
	store.AggregateStore
}

// Service recomputes acceptance aggregates. Recompute for a given pair is
// serialized through a keyed mutex; two concurrent claims or votes for the
// same pair can never race to an inconsistent aggregate.
type Service struct {
	store   Store
	locks   *keyedMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	svc := &Service{
		store: st,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Recompute rebuilds the aggregate for a pair from its live claim set and
// persists it. Invoking it twice against an unchanged claim/vote set yields
// an identical aggregate; callers fire it after every claim insert, vote
// change, and retention sweep.
func (s *Service) Recompute(ctx context.Context, pair models.PairKey) (*models.AcceptanceAggregate, error) {
	unlock := s.locks.Lock(pair.ProviderKey + "|" + pair.PlanKey)
	defer unlock()

	start := time.Now()
	defer func() {
		s.metrics.ObserveRecomputeLatency(time.Since(start))
	}()

	now := requestcontext.Now(ctx)

	claims, err := s.store.ListActiveClaims(ctx, pair.ProviderKey, pair.PlanKey, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load live claims")
	}

	prev := models.StatusPending
	if existing, err := s.store.GetAggregate(ctx, pair.ProviderKey, pair.PlanKey); err == nil {
		prev = existing.Status
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load aggregate")
	}

	// No live claims left: the pair reverts to unknown. The aggregate row is
	// removed; reads return the neutral PENDING aggregate.
	if len(claims) == 0 {
		if err := s.store.DeleteAggregate(ctx, pair.ProviderKey, pair.PlanKey); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete empty aggregate")
		}
		if prev != models.StatusPending {
			s.metrics.ObserveTransition(string(prev), string(models.StatusPending))
		}
		return models.NeutralAggregate(pair.ProviderKey, pair.PlanKey), nil
	}

	accepts, rejects := 0, 0
	ids := make([]uuid.UUID, len(claims))
	for i, claim := range claims {
		ids[i] = claim.ID
		if claim.Accepted {
			accepts++
		} else {
			rejects++
		}
	}

	votes, err := s.store.CountVotesForClaims(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count votes")
	}

	// ListActiveClaims returns newest first; the freshest claim drives the
	// recency and specialty inputs, the best provenance among live claims
	// drives the source input.
	newest := claims[0]
	ageInDays := int(now.Sub(newest.SubmittedAt).Hours() / 24)

	score, lvl := scoring.Score(scoring.Inputs{
		Provenance:        bestProvenance(claims),
		AgeInDays:         ageInDays,
		Specialty:         newest.Specialty,
		VerificationCount: len(claims),
		Upvotes:           votes.Upvotes,
		Downvotes:         votes.Downvotes,
	})

	next := Evaluate(EvaluateInput{
		Prev:    prev,
		Accepts: accepts,
		Rejects: rejects,
		Score:   score,
	})

	agg := &models.AcceptanceAggregate{
		ProviderKey:       pair.ProviderKey,
		PlanKey:           pair.PlanKey,
		Status:            next,
		ConfidenceScore:   score,
		ConfidenceLevel:   string(lvl),
		VerificationCount: len(claims),
		AgreementRatio:    votes.AgreementRatio(),
		LastVerifiedAt:    newest.SubmittedAt,
		ExpiresAt:         latestExpiry(claims),
		UpdatedAt:         now,
	}
	if err := s.store.UpsertAggregate(ctx, agg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert aggregate")
	}

	if next != prev {
		if err := s.store.UpdateClaimStatuses(ctx, pair, next, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update claim statuses")
		}
		s.metrics.ObserveTransition(string(prev), string(next))
		s.logTransition(ctx, pair, prev, next, score, len(claims))
	}

	return agg, nil
}

// GetAcceptance returns the current aggregate for a pair. An unknown pair is
// not an error; it reads as a neutral PENDING aggregate with zero evidence.
func (s *Service) GetAcceptance(ctx context.Context, providerKey, planKey string) (*models.AcceptanceAggregate, error) {
	agg, err := s.store.GetAggregate(ctx, providerKey, planKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.NeutralAggregate(providerKey, planKey), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get aggregate")
	}
	return agg, nil
}

func (s *Service) logTransition(ctx context.Context, pair models.PairKey, from, to models.Status, score, count int) {
	if s.logger == nil {
		return
	}
	attrs := []any{
		"provider_key", pair.ProviderKey,
		"plan_key", pair.PlanKey,
		"from", string(from),
		"to", string(to),
		"confidence_score", score,
		"verification_count", count,
		"event", "consensus_status_changed",
		"log_type", "audit",
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, "consensus status changed", attrs...)
}

// bestProvenance returns the highest-trust provenance among live claims.
func bestProvenance(claims []*models.VerificationClaim) models.Provenance {
	rank := func(p models.Provenance) int {
		switch p {
		case models.ProvenanceGovernment:
			return 3
		case models.ProvenanceCarrier:
			return 2
		case models.ProvenanceCommunity:
			return 1
		default:
			return 0
		}
	}
	best := models.ProvenanceUnknown
	for _, claim := range claims {
		if rank(claim.Provenance) > rank(best) {
			best = claim.Provenance
		}
	}
	return best
}

func latestExpiry(claims []*models.VerificationClaim) time.Time {
	var latest time.Time
	for _, claim := range claims {
		if claim.ExpiresAt.After(latest) {
			latest = claim.ExpiresAt
		}
	}
	return latest
}

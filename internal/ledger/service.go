// Package ledger keeps the one-vote-per-identity-per-claim bookkeeping.
// Casting the same direction twice is a conflict; casting the opposite
// direction replaces the prior row, it never duplicates or increments.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"covercheck/internal/verification/models"
	"covercheck/internal/verification/store"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/requestcontext"
	"covercheck/pkg/sentinel"
)

// Recomputer re-derives the aggregate for a pair after a vote change.
type Recomputer interface {
	Recompute(ctx context.Context, pair models.PairKey) (*models.AcceptanceAggregate, error)
}

// Store is the persistence surface the ledger needs.
type Store interface {
	store.ClaimStore
	store.VoteStore
}

// Result is the outcome of one cast.
type Result struct {
	Applied        bool
	Replaced       bool
	AgreementRatio float64
}

// Service is the vote ledger.
type Service struct {
	store      Store
	recomputer Recomputer
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(st Store, recomputer Recomputer, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if recomputer == nil {
		return nil, fmt.Errorf("recomputer is required")
	}
	svc := &Service{store: st, recomputer: recomputer}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CastVote records one identity's vote on a claim and triggers the pair
// recompute. A repeat of the same direction fails as a conflict; a flipped
// direction deletes the old row and inserts the new one.
func (s *Service) CastVote(ctx context.Context, claimID uuid.UUID, voterIdentity string, direction models.VoteDirection) (*Result, error) {
	if !direction.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "vote direction must be UP or DOWN")
	}
	if voterIdentity == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "voter identity is required")
	}

	now := requestcontext.Now(ctx)
	claim, err := s.store.GetClaim(ctx, claimID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	if claim.Expired(now) {
		return nil, dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeNotFound, "claim has expired")
	}

	replaced := false
	existing, err := s.store.GetVote(ctx, claimID, voterIdentity)
	switch {
	case err == nil:
		if existing.Direction == direction {
			return nil, dErrors.New(dErrors.CodeConflict, "vote already cast")
		}
		if err := s.store.DeleteVote(ctx, claimID, voterIdentity); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to replace vote")
		}
		replaced = true
	case errors.Is(err, sentinel.ErrNotFound):
		// first vote from this identity on this claim
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up vote")
	}

	vote := &models.VoteRecord{
		ID:            uuid.New(),
		ClaimID:       claimID,
		VoterIdentity: voterIdentity,
		Direction:     direction,
		CastAt:        now,
	}
	if err := s.store.InsertVote(ctx, vote); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "vote already cast")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert vote")
	}

	pair := models.PairKey{ProviderKey: claim.ProviderKey, PlanKey: claim.PlanKey}
	agg, err := s.recomputer.Recompute(ctx, pair)
	if err != nil {
		return nil, err
	}

	s.logCast(ctx, claim, voterIdentity, direction, replaced)
	return &Result{
		Applied:        true,
		Replaced:       replaced,
		AgreementRatio: agg.AgreementRatio,
	}, nil
}

func (s *Service) logCast(ctx context.Context, claim *models.VerificationClaim, voterIdentity string, direction models.VoteDirection, replaced bool) {
	if s.logger == nil {
		return
	}
	attrs := []any{
		"claim_id", claim.ID.String(),
		"provider_key", claim.ProviderKey,
		"plan_key", claim.PlanKey,
		"voter_identity", voterIdentity,
		"direction", string(direction),
		"replaced", replaced,
		"event", "vote_cast",
		"log_type", "audit",
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, "vote cast", attrs...)
}

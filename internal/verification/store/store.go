// Package store defines the persistence surface the trust pipeline needs and
// provides in-memory and PostgreSQL implementations. The pipeline requires
// only these query shapes; anything richer belongs to external collaborators.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"covercheck/internal/verification/models"
)

// ClaimStore persists verification claims. Expiry is modeled as an explicit
// expiresAt checked at read time; rows are removed only by the retention job.
type ClaimStore interface {
	InsertClaim(ctx context.Context, claim *models.VerificationClaim) error
	GetClaim(ctx context.Context, id uuid.UUID) (*models.VerificationClaim, error)

	// ListActiveClaims returns the non-expired claims for a pair, newest first.
	ListActiveClaims(ctx context.Context, providerKey, planKey string, now time.Time) ([]*models.VerificationClaim, error)

	// LatestIdentityClaim returns the most recent claim for the pair whose
	// network or contact identity matches, or sentinel.ErrNotFound.
	LatestIdentityClaim(ctx context.Context, identity, providerKey, planKey string) (*models.VerificationClaim, error)

	// PairHasClaims reports whether any claim (expired or not) exists for the pair.
	PairHasClaims(ctx context.Context, providerKey, planKey string) (bool, error)

	// UpdateClaimStatuses sets the status on every non-expired claim of a pair.
	UpdateClaimStatuses(ctx context.Context, pair models.PairKey, status models.Status, now time.Time) error

	// DeleteExpiredClaims removes up to limit expired claims and their votes.
	// Returns the affected pairs and the claim/vote delete counts.
	DeleteExpiredClaims(ctx context.Context, now time.Time, limit int) ([]models.PairKey, int, int, error)

	ExpiryStats(ctx context.Context, now time.Time) (*ExpiryStats, error)
	ClaimStats(ctx context.Context) (*ClaimStats, error)
}

// VoteStore persists vote records, unique per (claimID, voterIdentity).
type VoteStore interface {
	GetVote(ctx context.Context, claimID uuid.UUID, voterIdentity string) (*models.VoteRecord, error)
	InsertVote(ctx context.Context, vote *models.VoteRecord) error
	DeleteVote(ctx context.Context, claimID uuid.UUID, voterIdentity string) error
	CountVotesForClaims(ctx context.Context, claimIDs []uuid.UUID) (models.VoteCounts, error)
	CountVotes(ctx context.Context) (int, error)
}

// AggregateStore persists the derived per-pair aggregate, one row per pair.
type AggregateStore interface {
	GetAggregate(ctx context.Context, providerKey, planKey string) (*models.AcceptanceAggregate, error)
	UpsertAggregate(ctx context.Context, agg *models.AcceptanceAggregate) error
	DeleteAggregate(ctx context.Context, providerKey, planKey string) error
	ListAggregatePairs(ctx context.Context, limit int) ([]models.PairKey, error)
	CountAggregates(ctx context.Context) (int, error)
}

// Store is the full persistence collaborator.
type Store interface {
	ClaimStore
	VoteStore
	AggregateStore
}

// ExpiryStats summarizes claim expiry pressure at a point in time.
type ExpiryStats struct {
	ExpiredClaims    int
	ExpiringIn7Days  int
	ExpiringIn30Days int
	ActiveClaims     int
}

// ClaimStats summarizes total retained volume.
type ClaimStats struct {
	TotalClaims       int
	OldestSubmittedAt time.Time
}

package retention

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"covercheck/internal/verification/models"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/requestcontext"
)

// recalcConcurrency bounds parallel pair recomputes during a bulk
// recalculation so the store is not saturated.
const recalcConcurrency = 4

// CleanupResult reports an expiry cleanup run.
type CleanupResult struct {
	DryRun          bool `json:"dry_run"`
	ExpiredClaims   int  `json:"expired_claims"`
	ClaimsDeleted   int  `json:"claims_deleted"`
	VotesDeleted    int  `json:"votes_deleted"`
	PairsRecomputed int  `json:"pairs_recomputed"`
}

// CleanupExpired removes expired claims and their votes in batches and
// recomputes affected pairs. With dryRun it only reports what a real run
// would delete.
func (j *Job) CleanupExpired(ctx context.Context, dryRun bool, batchSize int) (*CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = j.batchSize
	}
	now := requestcontext.Now(ctx)

	stats, err := j.store.ExpiryStats(ctx, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read expiry stats")
	}
	result := &CleanupResult{DryRun: dryRun, ExpiredClaims: stats.ExpiredClaims}
	if dryRun {
		return result, nil
	}

	sweep, err := j.sweep(ctx, batchSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cleanup sweep failed")
	}

	result.ClaimsDeleted = sweep.ClaimsDeleted
	result.VotesDeleted = sweep.VotesDeleted
	result.PairsRecomputed = sweep.PairsRecomputed
	return result, nil
}

// RecalcResult reports a bulk confidence recalculation.
type RecalcResult struct {
	DryRun          bool `json:"dry_run"`
	PairsExamined   int  `json:"pairs_examined"`
	PairsRecomputed int  `json:"pairs_recomputed"`
	StatusChanges   int  `json:"status_changes"`
}

// RecalculateConfidence recomputes up to limit pair aggregates from their
// live claim sets. Recompute is idempotent, so this is safe to run at any
// time; dry-run only counts the pairs that would be touched.
func (j *Job) RecalculateConfidence(ctx context.Context, dryRun bool, limit int) (*RecalcResult, error) {
	if limit <= 0 {
		limit = 1000
	}
	pairs, err := j.store.ListAggregatePairs(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list aggregate pairs")
	}

	result := &RecalcResult{DryRun: dryRun, PairsExamined: len(pairs)}
	if dryRun {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalcConcurrency)
	for _, pair := range pairs {
		g.Go(func() error {
			before, err := j.store.GetAggregate(gctx, pair.ProviderKey, pair.PlanKey)
			prev := models.StatusPending
			if err == nil {
				prev = before.Status
			}
			agg, err := j.recomputer.Recompute(gctx, pair)
			if err != nil {
				return fmt.Errorf("recompute %s/%s: %w", pair.ProviderKey, pair.PlanKey, err)
			}
			mu.Lock()
			result.PairsRecomputed++
			if agg.Status != prev {
				result.StatusChanges++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "bulk recompute failed")
	}
	return result, nil
}

// ExpirationStats reports expiry pressure without mutating anything.
type ExpirationStats struct {
	ExpiredClaims    int `json:"expired_claims"`
	ExpiringIn7Days  int `json:"expiring_in_7_days"`
	ExpiringIn30Days int `json:"expiring_in_30_days"`
	ActiveClaims     int `json:"active_claims"`
}

func (j *Job) ExpirationStats(ctx context.Context) (*ExpirationStats, error) {
	stats, err := j.store.ExpiryStats(ctx, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read expiry stats")
	}
	return &ExpirationStats{
		ExpiredClaims:    stats.ExpiredClaims,
		ExpiringIn7Days:  stats.ExpiringIn7Days,
		ExpiringIn30Days: stats.ExpiringIn30Days,
		ActiveClaims:     stats.ActiveClaims,
	}, nil
}

// RetentionStats reports retained data volume.
type RetentionStats struct {
	TotalClaims     int     `json:"total_claims"`
	TotalVotes      int     `json:"total_votes"`
	TotalAggregates int     `json:"total_aggregates"`
	OldestClaimDays float64 `json:"oldest_claim_days"`
}

func (j *Job) RetentionStats(ctx context.Context) (*RetentionStats, error) {
	claimStats, err := j.store.ClaimStats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim stats")
	}
	votes, err := j.store.CountVotes(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count votes")
	}
	aggregates, err := j.store.CountAggregates(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count aggregates")
	}

	stats := &RetentionStats{
		TotalClaims:     claimStats.TotalClaims,
		TotalVotes:      votes,
		TotalAggregates: aggregates,
	}
	if !claimStats.OldestSubmittedAt.IsZero() {
		stats.OldestClaimDays = requestcontext.Now(ctx).Sub(claimStats.OldestSubmittedAt).Hours() / 24
	}
	return stats, nil
}

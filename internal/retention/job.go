// Package retention enforces claim TTLs. A background sweep deletes expired
// claims (votes cascade) in bounded batches and re-triggers the consensus
// recompute for every affected pair; the same machinery backs the
// admin-triggerable maintenance operations.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"covercheck/internal/verification/models"
	"covercheck/internal/verification/store"
	"covercheck/pkg/requestcontext"
)

const (
	DefaultInterval  = time.Hour
	DefaultBatchSize = 500
	// defaultBatchRate paces consecutive delete batches so a large backlog
	// never starves foreground traffic of store capacity.
	defaultBatchRate = rate.Limit(2)
)

// Recomputer re-derives the aggregate for a pair after its claims change.
type Recomputer interface {
	Recompute(ctx context.Context, pair models.PairKey) (*models.AcceptanceAggregate, error)
}

// Job is the scheduled retention sweep.
type Job struct {
	store      store.Store
	recomputer Recomputer
	interval   time.Duration
	batchSize  int
	pacer      *rate.Limiter
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		j.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(j *Job) {
		j.metrics = m
	}
}

func WithInterval(interval time.Duration) Option {
	return func(j *Job) {
		j.interval = interval
	}
}

func WithBatchSize(size int) Option {
	return func(j *Job) {
		j.batchSize = size
	}
}

func NewJob(st store.Store, recomputer Recomputer, opts ...Option) (*Job, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if recomputer == nil {
		return nil, fmt.Errorf("recomputer is required")
	}
	j := &Job{
		store:      st,
		recomputer: recomputer,
		interval:   DefaultInterval,
		batchSize:  DefaultBatchSize,
		pacer:      rate.NewLimiter(defaultBatchRate, 1),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run sweeps on a ticker until the context is canceled.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				if j.logger != nil {
					j.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
				}
			}
		}
	}
}

// SweepResult summarizes one full sweep.
type SweepResult struct {
	ClaimsDeleted   int
	VotesDeleted    int
	PairsRecomputed int
	Batches         int
}

// Sweep drains all currently-expired claims in paced batches. Idempotent:
// re-running against an already-clean store deletes nothing and recomputes
// nothing.
func (j *Job) Sweep(ctx context.Context) (*SweepResult, error) {
	return j.sweep(ctx, j.batchSize)
}

func (j *Job) sweep(ctx context.Context, batchSize int) (*SweepResult, error) {
	now := requestcontext.Now(ctx)
	result := &SweepResult{}

	for {
		if err := j.pacer.Wait(ctx); err != nil {
			return result, err
		}

		pairs, claims, votes, err := j.store.DeleteExpiredClaims(ctx, now, batchSize)
		if err != nil {
			return result, fmt.Errorf("delete expired claims: %w", err)
		}
		if claims == 0 {
			break
		}

		result.Batches++
		result.ClaimsDeleted += claims
		result.VotesDeleted += votes
		for _, pair := range pairs {
			if _, err := j.recomputer.Recompute(ctx, pair); err != nil {
				return result, fmt.Errorf("recompute %s/%s: %w", pair.ProviderKey, pair.PlanKey, err)
			}
			result.PairsRecomputed++
		}
	}

	j.metrics.ObserveSweep(result.ClaimsDeleted, result.VotesDeleted)
	if j.logger != nil && result.ClaimsDeleted > 0 {
		j.logger.InfoContext(ctx, "retention sweep completed",
			"claims_deleted", result.ClaimsDeleted,
			"votes_deleted", result.VotesDeleted,
			"pairs_recomputed", result.PairsRecomputed,
			"batches", result.Batches,
			"event", "retention_sweep",
			"log_type", "audit",
		)
	}
	return result, nil
}

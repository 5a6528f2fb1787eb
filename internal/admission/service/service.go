// Package service implements the admission counter: a sliding-window
// check-and-increment against a shared store, with a bounded store timeout
// and a degraded local fallback so infrastructure failure never turns into a
// full traffic block.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"covercheck/internal/admission/config"
	"covercheck/internal/admission/metrics"
	"covercheck/internal/admission/models"
	"covercheck/internal/admission/store/window"
	"covercheck/pkg/requestcontext"
)

// DefaultStoreTimeout bounds shared store calls; past it the local fallback
// answers instead.
const DefaultStoreTimeout = 50 * time.Millisecond

// degradedDivisor tightens the fallback limit: the local store cannot see
// other instances' traffic, so it admits only a fraction of the tier budget.
const degradedDivisor = 4

// Service is the admission counter.
type Service struct {
	primary      window.Store
	fallback     window.Store
	tiers        *config.Table
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
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

func WithTiers(tiers *config.Table) Option {
	return func(s *Service) {
		s.tiers = tiers
	}
}

func WithStoreTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = timeout
	}
}

// New builds an admission service. primary may equal fallback for
// single-instance deployments that run without a shared store.
func New(primary, fallback window.Store, opts ...Option) (*Service, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary window store is required")
	}
	if fallback == nil {
		return nil, fmt.Errorf("fallback window store is required")
	}

	svc := &Service{
		primary:      primary,
		fallback:     fallback,
		tiers:        config.Default(),
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check performs the atomic check-and-increment for (identity, tier).
// On shared-store timeout or error it degrades to the local fallback with a
// tightened limit and marks the result Degraded; degraded mode is observable,
// never swallowed, and never an unconditional block.
func (s *Service) Check(ctx context.Context, identity, tierName string) (*models.Result, error) {
	tier := s.tiers.Lookup(tierName)
	key := tier.Name + ":" + identity

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.primary.Allow(storeCtx, key, tier.MaxRequests, tier.Window)
	s.metrics.ObserveStoreLatency(time.Since(start))
	if err != nil {
		result, err = s.checkDegraded(ctx, key, tier, err)
		if err != nil {
			return nil, err
		}
	}

	s.metrics.ObserveDecision(tier.Name, result.Allowed)
	if !result.Allowed {
		s.logAudit(ctx, "admission_denied",
			"identity", identity,
			"tier", tier.Name,
			"limit", result.Limit,
			"reset_at", result.ResetAt,
			"degraded", result.Degraded,
		)
	}
	return result, nil
}

// checkDegraded answers from the local fallback after a shared store failure.
func (s *Service) checkDegraded(ctx context.Context, key string, tier models.Tier, cause error) (*models.Result, error) {
	limit := tier.MaxRequests / degradedDivisor
	if limit < 1 {
		limit = 1
	}

	result, err := s.fallback.Allow(ctx, key, limit, tier.Window)
	if err != nil {
		return nil, fmt.Errorf("admission fallback store: %w", err)
	}
	result.Degraded = true
	// Report the real tier budget, not the synthetic one.
	result.Limit = tier.MaxRequests

	s.metrics.ObserveDegraded(tier.Name)
	if s.logger != nil {
		s.logger.WarnContext(ctx, "admission store degraded",
			"tier", tier.Name,
			"fallback_limit", limit,
			"error", cause,
		)
	}
	return result, nil
}

// Reset clears both stores' windows for (identity, tier). Admin use only.
func (s *Service) Reset(ctx context.Context, identity, tierName string) error {
	tier := s.tiers.Lookup(tierName)
	key := tier.Name + ":" + identity
	if err := s.primary.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset primary window: %w", err)
	}
	if err := s.fallback.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset fallback window: %w", err)
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

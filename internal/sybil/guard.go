// Package sybil suppresses duplicate submissions: one identity gets one live
// claim per (provider, plan) pair inside a rolling window, checked on both
// the network-derived and contact-derived identity axes.
package sybil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"covercheck/internal/verification/store"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/requestcontext"
	"covercheck/pkg/sentinel"
)

// DefaultWindow is the rolling suppression window.
const DefaultWindow = 30 * 24 * time.Hour

// Identities are the opaque identity axes of one submitter. Contact may be
// empty; Network never is.
type Identities struct {
	Network string
	Contact string
}

// Guard answers "has this identity already claimed this pair recently".
// A hot cache fronts the claim store; the store is the source of truth, the
// cache only saves the lookup for repeat offenders.
type Guard struct {
	claims store.ClaimStore
	recent *gocache.Cache
	window time.Duration
	logger *slog.Logger
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithWindow(window time.Duration) Option {
	return func(g *Guard) {
		g.window = window
	}
}

// New builds a guard over the claim store.
func New(claims store.ClaimStore, opts ...Option) (*Guard, error) {
	if claims == nil {
		return nil, fmt.Errorf("claim store is required")
	}
	g := &Guard{
		claims: claims,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.recent = gocache.New(g.window, time.Hour)
	return g, nil
}

// IsDuplicate reports whether either identity axis already submitted a claim
// for the pair within the window. The very first claim ever for a pair is
// always admitted; with no history there is nothing to duplicate.
func (g *Guard) IsDuplicate(ctx context.Context, ids Identities, providerKey, planKey string) (bool, error) {
	exists, err := g.claims.PairHasClaims(ctx, providerKey, planKey)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check pair history")
	}
	if !exists {
		return false, nil
	}

	now := requestcontext.Now(ctx)
	for _, identity := range []string{ids.Network, ids.Contact} {
		if identity == "" {
			continue
		}
		dup, err := g.identityIsDuplicate(ctx, identity, providerKey, planKey, now)
		if err != nil {
			return false, err
		}
		if dup {
			g.logHit(ctx, identity, providerKey, planKey)
			return true, nil
		}
	}
	return false, nil
}

// Record marks a just-accepted claim in the hot cache so the next attempt
// from the same identity short-circuits without a store round trip.
func (g *Guard) Record(ids Identities, providerKey, planKey string, submittedAt time.Time) {
	for _, identity := range []string{ids.Network, ids.Contact} {
		if identity == "" {
			continue
		}
		g.recent.Set(cacheKey(identity, providerKey, planKey), submittedAt, gocache.DefaultExpiration)
	}
}

func (g *Guard) identityIsDuplicate(ctx context.Context, identity, providerKey, planKey string, now time.Time) (bool, error) {
	key := cacheKey(identity, providerKey, planKey)
	if raw, found := g.recent.Get(key); found {
		if submittedAt, ok := raw.(time.Time); ok && now.Sub(submittedAt) < g.window {
			return true, nil
		}
	}

	latest, err := g.claims.LatestIdentityClaim(ctx, identity, providerKey, planKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity claims")
	}
	if now.Sub(latest.SubmittedAt) >= g.window {
		return false, nil
	}
	g.recent.Set(key, latest.SubmittedAt, gocache.DefaultExpiration)
	return true, nil
}

func (g *Guard) logHit(ctx context.Context, identity, providerKey, planKey string) {
	if g.logger == nil {
		return
	}
	attrs := []any{
		"identity", identity,
		"provider_key", providerKey,
		"plan_key", planKey,
		"event", "duplicate_submission_blocked",
		"log_type", "audit",
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	g.logger.InfoContext(ctx, "duplicate submission blocked", attrs...)
}

func cacheKey(identity, providerKey, planKey string) string {
	return identity + "|" + providerKey + "|" + planKey
}

// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services read them; keeping
// the package free of net/http lets workers and tests inject the same values.
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey       struct{}
	requestTimeKey     struct{}
	networkIdentityKey struct{}
	contactIdentityKey struct{}
)

// RequestID retrieves the request ID from the context, or "" if unset.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// NetworkIdentity retrieves the derived network-axis identity, or "" if unset.
func NetworkIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(networkIdentityKey{}).(string); ok {
		return id
	}
	return ""
}

// WithNetworkIdentity injects a derived network-axis identity.
func WithNetworkIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, networkIdentityKey{}, identity)
}

// ContactIdentity retrieves the derived contact-axis identity, or "" if unset.
func ContactIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(contactIdentityKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContactIdentity injects a derived contact-axis identity.
func WithContactIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, contactIdentityKey{}, identity)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, tests, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need a consistent time within a batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

package testutil

import (
	"net/http"
	"time"

	"covercheck/pkg/requestcontext"
)

// WithNetworkIdentity attaches a derived network identity to the request
// context, as the client-identity middleware would.
func WithNetworkIdentity(req *http.Request, identity string) *http.Request {
	return req.WithContext(requestcontext.WithNetworkIdentity(req.Context(), identity))
}

// WithContactIdentity attaches a derived contact identity to the request context.
func WithContactIdentity(req *http.Request, identity string) *http.Request {
	return req.WithContext(requestcontext.WithContactIdentity(req.Context(), identity))
}

// WithTime pins the request-scoped clock so handlers see a fixed now.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// Package models holds the admission counter's shared types.
package models

import "time"

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded marks a decision taken by the local fallback store with a
	// tightened synthetic limit after the shared store failed. Callers must
	// surface it to observability; it is never a user-facing failure.
	Degraded bool
}

// Tier is one named admission budget from the static tier table.
type Tier struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

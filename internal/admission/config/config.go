// Package config holds the static admission tier table. Tiers are loaded
// once and referenced by name; per-call limit parameters are not a thing.
package config

import (
	"time"

	"covercheck/internal/admission/models"
)

// Tier names referenced across the pipeline.
const (
	TierSubmit  = "submit"
	TierVote    = "vote"
	TierSearch  = "search"
	TierDefault = "default"

	// TierAbuseFallback is the much stricter budget substituted while the
	// abuse-gate provider is unavailable. It is a tunable, not a constant:
	// override via WithAbuseFallback at construction.
	TierAbuseFallback = "abuse_fallback"
)

// Table is an immutable set of named tiers.
type Table struct {
	tiers map[string]models.Tier
}

// Default returns the standard tier table.
func Default() *Table {
	return New(
		models.Tier{Name: TierSubmit, Window: time.Hour, MaxRequests: 10},
		models.Tier{Name: TierVote, Window: time.Hour, MaxRequests: 10},
		models.Tier{Name: TierSearch, Window: time.Hour, MaxRequests: 100},
		models.Tier{Name: TierDefault, Window: time.Hour, MaxRequests: 200},
		models.Tier{Name: TierAbuseFallback, Window: time.Hour, MaxRequests: 3},
	)
}

// New builds a table from explicit tiers.
func New(tiers ...models.Tier) *Table {
	m := make(map[string]models.Tier, len(tiers))
	for _, t := range tiers {
		m[t.Name] = t
	}
	return &Table{tiers: m}
}

// WithAbuseFallback returns a copy of the table with the abuse-fallback tier
// replaced by the given budget.
func (t *Table) WithAbuseFallback(maxRequests int, window time.Duration) *Table {
	out := make(map[string]models.Tier, len(t.tiers))
	for name, tier := range t.tiers {
		out[name] = tier
	}
	out[TierAbuseFallback] = models.Tier{Name: TierAbuseFallback, Window: window, MaxRequests: maxRequests}
	return &Table{tiers: out}
}

// Lookup resolves a tier by name, falling back to the default tier.
func (t *Table) Lookup(name string) models.Tier {
	if tier, ok := t.tiers[name]; ok {
		return tier
	}
	return t.tiers[TierDefault]
}

// Package models holds the domain types shared by the verification pipeline:
// claims submitted by the crowd, the votes cast on them, and the derived
// per-(provider,plan) acceptance aggregate.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Provenance is the declared origin/trust tier of a claim.
type Provenance string

const (
	ProvenanceGovernment Provenance = "GOVERNMENT"
	ProvenanceCarrier    Provenance = "CARRIER"
	ProvenanceCommunity  Provenance = "COMMUNITY"
	ProvenanceUnknown    Provenance = "UNKNOWN"
)

// ParseProvenance normalizes a wire value; anything unrecognized is UNKNOWN.
func ParseProvenance(s string) Provenance {
	switch Provenance(s) {
	case ProvenanceGovernment, ProvenanceCarrier, ProvenanceCommunity:
		return Provenance(s)
	default:
		return ProvenanceUnknown
	}
}

// Status is the consensus state of a claim or of a (provider, plan) pair.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusRejected    Status = "REJECTED"
	StatusConflicting Status = "CONFLICTING"
)

// VoteDirection is the direction of a community vote on a claim.
type VoteDirection string

const (
	VoteUp   VoteDirection = "UP"
	VoteDown VoteDirection = "DOWN"
)

// IsValid reports whether the direction is one of the two allowed values.
func (d VoteDirection) IsValid() bool {
	return d == VoteUp || d == VoteDown
}

// PairKey identifies a (provider, plan) acceptance question.
type PairKey struct {
	ProviderKey string
	PlanKey     string
}

// VerificationClaim is a single crowd-submitted acceptance assertion.
// Identities are opaque digests; raw addresses or contacts never reach here.
type VerificationClaim struct {
	ID              uuid.UUID
	ProviderKey     string
	PlanKey         string
	Accepted        bool
	Provenance      Provenance
	Specialty       string
	NetworkIdentity string
	ContactIdentity string
	Status          Status
	SubmittedAt     time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the claim is past its TTL at the given instant.
func (c *VerificationClaim) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// VoteRecord is one identity's vote on one claim. At most one row exists per
// (ClaimID, VoterIdentity); a flipped vote replaces the row.
type VoteRecord struct {
	ID            uuid.UUID
	ClaimID       uuid.UUID
	VoterIdentity string
	Direction     VoteDirection
	CastAt        time.Time
}

// VoteCounts is the tally of votes over one claim or a whole pair.
type VoteCounts struct {
	Upvotes   int
	Downvotes int
}

// AgreementRatio is upvotes/(upvotes+downvotes), or 0 with no votes.
func (v VoteCounts) AgreementRatio() float64 {
	total := v.Upvotes + v.Downvotes
	if total == 0 {
		return 0
	}
	return float64(v.Upvotes) / float64(total)
}

// AcceptanceAggregate is the derived consensus for a (provider, plan) pair.
// It is always recomputed from the live claim set, never patched in place.
type AcceptanceAggregate struct {
	ProviderKey       string
	PlanKey           string
	Status            Status
	ConfidenceScore   int
	ConfidenceLevel   string
	VerificationCount int
	AgreementRatio    float64
	LastVerifiedAt    time.Time
	ExpiresAt         time.Time
	UpdatedAt         time.Time
}

// NeutralAggregate is what a read of an unknown pair returns: PENDING with
// zero evidence, not an error.
func NeutralAggregate(providerKey, planKey string) *AcceptanceAggregate {
	return &AcceptanceAggregate{
		ProviderKey: providerKey,
		PlanKey:     planKey,
		Status:      StatusPending,
	}
}

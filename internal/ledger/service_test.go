package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"covercheck/internal/consensus"
	"covercheck/internal/verification/models"
	"covercheck/internal/verification/store"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/requestcontext"
	"covercheck/pkg/sentinel"
)

type VoteLedgerSuite struct {
	suite.Suite
	store   *store.MemoryStore
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestVoteLedgerSuite(t *testing.T) {
	suite.Run(t, new(VoteLedgerSuite))
}

func (s *VoteLedgerSuite) SetupTest() {
	s.store = store.NewMemoryStore()

	recomputer, err := consensus.New(s.store)
	s.Require().NoError(err)

	s.service, err = New(s.store, recomputer)
	s.Require().NoError(err)

	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

// insertClaim creates a claim on its own (provider, plan) pair so subtests
// sharing the store never see each other's votes.
func (s *VoteLedgerSuite) insertClaim(pair string, expiresAt time.Time) *models.VerificationClaim {
	claim := &models.VerificationClaim{
		ID:              uuid.New(),
		ProviderKey:     "prov-" + pair,
		PlanKey:         "plan-" + pair,
		Accepted:        true,
		Provenance:      models.ProvenanceCommunity,
		NetworkIdentity: "net:submitter",
		Status:          models.StatusPending,
		SubmittedAt:     s.now.Add(-time.Hour),
		ExpiresAt:       expiresAt,
	}
	s.Require().NoError(s.store.InsertClaim(s.ctx, claim))
	return claim
}

func (s *VoteLedgerSuite) claimVotes(claimID uuid.UUID) models.VoteCounts {
	counts, err := s.store.CountVotesForClaims(s.ctx, []uuid.UUID{claimID})
	s.Require().NoError(err)
	return counts
}

func (s *VoteLedgerSuite) TestNew() {
	s.Run("nil store returns error", func() {
		recomputer, err := consensus.New(s.store)
		s.Require().NoError(err)
		_, err = New(nil, recomputer)
		s.Error(err)
	})

	s.Run("nil recomputer returns error", func() {
		_, err := New(s.store, nil)
		s.Error(err)
	})
}

func (s *VoteLedgerSuite) TestCastVote() {
	s.Run("invalid direction rejected", func() {
		_, err := s.service.CastVote(s.ctx, uuid.New(), "net:voter", models.VoteDirection("SIDEWAYS"))
		s.Require().Error(err)
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	})

	s.Run("empty voter identity rejected", func() {
		_, err := s.service.CastVote(s.ctx, uuid.New(), "", models.VoteUp)
		s.Require().Error(err)
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	})

	s.Run("unknown claim is not found", func() {
		_, err := s.service.CastVote(s.ctx, uuid.New(), "net:voter", models.VoteUp)
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("expired claim votes like a missing one", func() {
		claim := s.insertClaim("expired", s.now.Add(-time.Minute))

		_, err := s.service.CastVote(s.ctx, claim.ID, "net:voter", models.VoteUp)
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
		s.ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("first vote is applied", func() {
		claim := s.insertClaim("first", s.now.Add(24*time.Hour))

		result, err := s.service.CastVote(s.ctx, claim.ID, "net:voter", models.VoteUp)
		s.Require().NoError(err)
		s.True(result.Applied)
		s.False(result.Replaced)
		s.InDelta(1.0, result.AgreementRatio, 0.001)
	})

	s.Run("same direction twice is a conflict", func() {
		claim := s.insertClaim("repeat", s.now.Add(24*time.Hour))

		_, err := s.service.CastVote(s.ctx, claim.ID, "net:voter", models.VoteUp)
		s.Require().NoError(err)

		_, err = s.service.CastVote(s.ctx, claim.ID, "net:voter", models.VoteUp)
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))

		counts := s.claimVotes(claim.ID)
		s.Equal(1, counts.Upvotes)
		s.Equal(0, counts.Downvotes)
	})

	s.Run("flipped vote replaces the row instead of adding one", func() {
		claim := s.insertClaim("flip", s.now.Add(24*time.Hour))

		_, err := s.service.CastVote(s.ctx, claim.ID, "net:voter", models.VoteUp)
		s.Require().NoError(err)

		result, err := s.service.CastVote(s.ctx, claim.ID, "net:voter", models.VoteDown)
		s.Require().NoError(err)
		s.True(result.Applied)
		s.True(result.Replaced)

		counts := s.claimVotes(claim.ID)
		s.Equal(0, counts.Upvotes)
		s.Equal(1, counts.Downvotes)

		vote, err := s.store.GetVote(s.ctx, claim.ID, "net:voter")
		s.Require().NoError(err)
		s.Equal(models.VoteDown, vote.Direction)
	})

	s.Run("votes from distinct identities accumulate", func() {
		claim := s.insertClaim("many", s.now.Add(24*time.Hour))

		_, err := s.service.CastVote(s.ctx, claim.ID, "net:voter-a", models.VoteUp)
		s.Require().NoError(err)
		_, err = s.service.CastVote(s.ctx, claim.ID, "net:voter-b", models.VoteUp)
		s.Require().NoError(err)
		result, err := s.service.CastVote(s.ctx, claim.ID, "net:voter-c", models.VoteDown)
		s.Require().NoError(err)

		s.InDelta(2.0/3.0, result.AgreementRatio, 0.001)
	})

	s.Run("vote triggers the pair recompute", func() {
		claim := s.insertClaim("recompute", s.now.Add(24*time.Hour))

		_, err := s.service.CastVote(s.ctx, claim.ID, "net:voter", models.VoteUp)
		s.Require().NoError(err)

		agg, err := s.store.GetAggregate(s.ctx, claim.ProviderKey, claim.PlanKey)
		s.Require().NoError(err)
		s.InDelta(1.0, agg.AgreementRatio, 0.001)
		s.Equal(1, agg.VerificationCount)
	})
}

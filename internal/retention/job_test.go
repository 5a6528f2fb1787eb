package retention

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"covercheck/internal/consensus"
	"covercheck/internal/verification/models"
	"covercheck/internal/verification/store"
	"covercheck/pkg/requestcontext"
)

type RetentionJobSuite struct {
	suite.Suite
	store *store.MemoryStore
	job   *Job
	ctx   context.Context
	now   time.Time
}

func TestRetentionJobSuite(t *testing.T) {
	suite.Run(t, new(RetentionJobSuite))
}

func (s *RetentionJobSuite) SetupTest() {
	s.store = store.NewMemoryStore()

	recomputer, err := consensus.New(s.store)
	s.Require().NoError(err)

	s.job, err = NewJob(s.store, recomputer)
	s.Require().NoError(err)

	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *RetentionJobSuite) insertClaim(pair string, expiresAt time.Time) *models.VerificationClaim {
	claim := &models.VerificationClaim{
		ID:              uuid.New(),
		ProviderKey:     "prov-" + pair,
		PlanKey:         "plan-" + pair,
		Accepted:        true,
		Provenance:      models.ProvenanceCommunity,
		NetworkIdentity: "net:" + uuid.NewString()[:8],
		Status:          models.StatusPending,
		SubmittedAt:     expiresAt.Add(-180 * 24 * time.Hour),
		ExpiresAt:       expiresAt,
	}
	s.Require().NoError(s.store.InsertClaim(s.ctx, claim))
	return claim
}

func (s *RetentionJobSuite) insertVote(claimID uuid.UUID, voter string) {
	s.Require().NoError(s.store.InsertVote(s.ctx, &models.VoteRecord{
		ID:            uuid.New(),
		ClaimID:       claimID,
		VoterIdentity: voter,
		Direction:     models.VoteUp,
		CastAt:        s.now.Add(-time.Hour),
	}))
}

func (s *RetentionJobSuite) TestNewJob() {
	s.Run("nil store returns error", func() {
		recomputer, err := consensus.New(s.store)
		s.Require().NoError(err)
		_, err = NewJob(nil, recomputer)
		s.Error(err)
	})

	s.Run("nil recomputer returns error", func() {
		_, err := NewJob(s.store, nil)
		s.Error(err)
	})
}

func (s *RetentionJobSuite) TestSweep() {
	s.Run("expired claims and their votes are removed", func() {
		expired := s.insertClaim("gone", s.now.Add(-time.Hour))
		s.insertVote(expired.ID, "net:voter-a")
		s.insertVote(expired.ID, "net:voter-b")
		live := s.insertClaim("stays", s.now.Add(24*time.Hour))

		result, err := s.job.Sweep(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, result.ClaimsDeleted)
		s.Equal(2, result.VotesDeleted)
		s.Equal(1, result.PairsRecomputed)

		_, err = s.store.GetClaim(s.ctx, expired.ID)
		s.Error(err)
		_, err = s.store.GetClaim(s.ctx, live.ID)
		s.NoError(err)
	})

	s.Run("sweep is idempotent", func() {
		s.insertClaim("once", s.now.Add(-time.Hour))

		first, err := s.job.Sweep(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, first.ClaimsDeleted)

		second, err := s.job.Sweep(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, second.ClaimsDeleted)
		s.Equal(0, second.PairsRecomputed)
	})

	s.Run("affected pair reverts to neutral after its last claim expires", func() {
		recomputer, err := consensus.New(s.store)
		s.Require().NoError(err)

		claim := s.insertClaim("revert", s.now.Add(-time.Hour))
		pair := models.PairKey{ProviderKey: claim.ProviderKey, PlanKey: claim.PlanKey}

		// Seed an aggregate as if the claim had been live once.
		s.Require().NoError(s.store.UpsertAggregate(s.ctx, &models.AcceptanceAggregate{
			ProviderKey: pair.ProviderKey,
			PlanKey:     pair.PlanKey,
			Status:      models.StatusConfirmed,
		}))

		_, err = s.job.Sweep(s.ctx)
		s.Require().NoError(err)

		agg, err := recomputer.GetAcceptance(s.ctx, pair.ProviderKey, pair.PlanKey)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, agg.Status)
		s.Equal(0, agg.VerificationCount)
	})

	s.Run("large backlogs drain across batches", func() {
		job, err := NewJob(s.store, mustRecomputer(s), WithBatchSize(2))
		s.Require().NoError(err)

		for i := range 5 {
			s.insertClaim("batch-"+string(rune('a'+i)), s.now.Add(-time.Hour))
		}

		result, err := job.Sweep(s.ctx)
		s.Require().NoError(err)
		s.Equal(5, result.ClaimsDeleted)
		s.Equal(3, result.Batches)
	})
}

func mustRecomputer(s *RetentionJobSuite) Recomputer {
	recomputer, err := consensus.New(s.store)
	s.Require().NoError(err)
	return recomputer
}

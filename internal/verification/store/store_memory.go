package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"covercheck/internal/verification/models"
	"covercheck/pkg/sentinel"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs single-instance
// deployments and serves as the test double for every service that takes a
// store interface.
type MemoryStore struct {
	mu         sync.RWMutex
	claims     map[uuid.UUID]*models.VerificationClaim
	votes      map[uuid.UUID]map[string]*models.VoteRecord // claimID -> voter -> vote
	aggregates map[models.PairKey]*models.AcceptanceAggregate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:     make(map[uuid.UUID]*models.VerificationClaim),
		votes:      make(map[uuid.UUID]map[string]*models.VoteRecord),
		aggregates: make(map[models.PairKey]*models.AcceptanceAggregate),
	}
}

func (s *MemoryStore) InsertClaim(_ context.Context, claim *models.VerificationClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[claim.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *claim
	s.claims[claim.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClaim(_ context.Context, id uuid.UUID) (*models.VerificationClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, ok := s.claims[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *claim
	return &cp, nil
}

func (s *MemoryStore) ListActiveClaims(_ context.Context, providerKey, planKey string, now time.Time) ([]*models.VerificationClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VerificationClaim
	for _, claim := range s.claims {
		if claim.ProviderKey == providerKey && claim.PlanKey == planKey && !claim.Expired(now) {
			cp := *claim
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *MemoryStore) LatestIdentityClaim(_ context.Context, identity, providerKey, planKey string) (*models.VerificationClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.VerificationClaim
	for _, claim := range s.claims {
		if claim.ProviderKey != providerKey || claim.PlanKey != planKey {
			continue
		}
		if claim.NetworkIdentity != identity && claim.ContactIdentity != identity {
			continue
		}
		if latest == nil || claim.SubmittedAt.After(latest.SubmittedAt) {
			latest = claim
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) PairHasClaims(_ context.Context, providerKey, planKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, claim := range s.claims {
		if claim.ProviderKey == providerKey && claim.PlanKey == planKey {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpdateClaimStatuses(_ context.Context, pair models.PairKey, status models.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, claim := range s.claims {
		if claim.ProviderKey == pair.ProviderKey && claim.PlanKey == pair.PlanKey && !claim.Expired(now) {
			claim.Status = status
		}
	}
	return nil
}

func (s *MemoryStore) DeleteExpiredClaims(_ context.Context, now time.Time, limit int) ([]models.PairKey, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.VerificationClaim
	for _, claim := range s.claims {
		if claim.Expired(now) {
			expired = append(expired, claim)
		}
	}
	// Oldest-expiring first so repeated batches drain deterministically.
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	pairSet := make(map[models.PairKey]struct{})
	votesDeleted := 0
	for _, claim := range expired {
		pairSet[models.PairKey{ProviderKey: claim.ProviderKey, PlanKey: claim.PlanKey}] = struct{}{}
		votesDeleted += len(s.votes[claim.ID])
		delete(s.votes, claim.ID)
		delete(s.claims, claim.ID)
	}

	pairs := make([]models.PairKey, 0, len(pairSet))
	for pair := range pairSet {
		pairs = append(pairs, pair)
	}
	return pairs, len(expired), votesDeleted, nil
}

func (s *MemoryStore) ExpiryStats(_ context.Context, now time.Time) (*ExpiryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &ExpiryStats{}
	week := now.Add(7 * 24 * time.Hour)
	month := now.Add(30 * 24 * time.Hour)
	for _, claim := range s.claims {
		switch {
		case claim.Expired(now):
			stats.ExpiredClaims++
		default:
			stats.ActiveClaims++
			if !claim.ExpiresAt.After(week) {
				stats.ExpiringIn7Days++
			}
			if !claim.ExpiresAt.After(month) {
				stats.ExpiringIn30Days++
			}
		}
	}
	return stats, nil
}

func (s *MemoryStore) ClaimStats(_ context.Context) (*ClaimStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &ClaimStats{TotalClaims: len(s.claims)}
	for _, claim := range s.claims {
		if stats.OldestSubmittedAt.IsZero() || claim.SubmittedAt.Before(stats.OldestSubmittedAt) {
			stats.OldestSubmittedAt = claim.SubmittedAt
		}
	}
	return stats, nil
}

func (s *MemoryStore) GetVote(_ context.Context, claimID uuid.UUID, voterIdentity string) (*models.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[claimID][voterIdentity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *vote
	return &cp, nil
}

func (s *MemoryStore) InsertVote(_ context.Context, vote *models.VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[vote.ClaimID]; !exists {
		return sentinel.ErrNotFound
	}
	byVoter, ok := s.votes[vote.ClaimID]
	if !ok {
		byVoter = make(map[string]*models.VoteRecord)
		s.votes[vote.ClaimID] = byVoter
	}
	if _, exists := byVoter[vote.VoterIdentity]; exists {
		return sentinel.ErrConflict
	}
	cp := *vote
	byVoter[vote.VoterIdentity] = &cp
	return nil
}

func (s *MemoryStore) DeleteVote(_ context.Context, claimID uuid.UUID, voterIdentity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVoter, ok := s.votes[claimID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, exists := byVoter[voterIdentity]; !exists {
		return sentinel.ErrNotFound
	}
	delete(byVoter, voterIdentity)
	return nil
}

func (s *MemoryStore) CountVotesForClaims(_ context.Context, claimIDs []uuid.UUID) (models.VoteCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts models.VoteCounts
	for _, id := range claimIDs {
		for _, vote := range s.votes[id] {
			if vote.Direction == models.VoteUp {
				counts.Upvotes++
			} else {
				counts.Downvotes++
			}
		}
	}
	return counts, nil
}

func (s *MemoryStore) CountVotes(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, byVoter := range s.votes {
		total += len(byVoter)
	}
	return total, nil
}

func (s *MemoryStore) GetAggregate(_ context.Context, providerKey, planKey string) (*models.AcceptanceAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggregates[models.PairKey{ProviderKey: providerKey, PlanKey: planKey}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *agg
	return &cp, nil
}

func (s *MemoryStore) UpsertAggregate(_ context.Context, agg *models.AcceptanceAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *agg
	s.aggregates[models.PairKey{ProviderKey: agg.ProviderKey, PlanKey: agg.PlanKey}] = &cp
	return nil
}

func (s *MemoryStore) DeleteAggregate(_ context.Context, providerKey, planKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.aggregates, models.PairKey{ProviderKey: providerKey, PlanKey: planKey})
	return nil
}

func (s *MemoryStore) ListAggregatePairs(_ context.Context, limit int) ([]models.PairKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := make([]models.PairKey, 0, len(s.aggregates))
	for pair := range s.aggregates {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ProviderKey != pairs[j].ProviderKey {
			return pairs[i].ProviderKey < pairs[j].ProviderKey
		}
		return pairs[i].PlanKey < pairs[j].PlanKey
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

func (s *MemoryStore) CountAggregates(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aggregates), nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"covercheck/internal/verification/models"
	"covercheck/pkg/sentinel"
)

// PostgresStore persists claims, votes, and aggregates in PostgreSQL.
// Votes carry a foreign key to claims with ON DELETE CASCADE, so the
// retention sweep only ever deletes claim rows.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS verification_claims (
			id UUID PRIMARY KEY,
			provider_key TEXT NOT NULL,
			plan_key TEXT NOT NULL,
			accepted BOOLEAN NOT NULL,
			provenance TEXT NOT NULL,
			specialty TEXT NOT NULL DEFAULT '',
			network_identity TEXT NOT NULL,
			contact_identity TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_pair ON verification_claims (provider_key, plan_key)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_expires ON verification_claims (expires_at)`,
		`CREATE TABLE IF NOT EXISTS vote_records (
			id UUID PRIMARY KEY,
			claim_id UUID NOT NULL REFERENCES verification_claims (id) ON DELETE CASCADE,
			voter_identity TEXT NOT NULL,
			direction TEXT NOT NULL,
			cast_at TIMESTAMPTZ NOT NULL,
			UNIQUE (claim_id, voter_identity)
		)`,
		`CREATE TABLE IF NOT EXISTS acceptance_aggregates (
			provider_key TEXT NOT NULL,
			plan_key TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence_score INT NOT NULL,
			confidence_level TEXT NOT NULL,
			verification_count INT NOT NULL,
			agreement_ratio DOUBLE PRECISION NOT NULL,
			last_verified_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (provider_key, plan_key)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const claimColumns = `id, provider_key, plan_key, accepted, provenance, specialty,
	network_identity, contact_identity, status, submitted_at, expires_at`

func (s *PostgresStore) InsertClaim(ctx context.Context, claim *models.VerificationClaim) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		claim.ID, claim.ProviderKey, claim.PlanKey, claim.Accepted, string(claim.Provenance),
		claim.Specialty, claim.NetworkIdentity, claim.ContactIdentity, string(claim.Status),
		claim.SubmittedAt, claim.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetClaim(ctx context.Context, id uuid.UUID) (*models.VerificationClaim, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM verification_claims WHERE id = $1`, id)
	return scanClaim(row)
}

func (s *PostgresStore) ListActiveClaims(ctx context.Context, providerKey, planKey string, now time.Time) ([]*models.VerificationClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM verification_claims
		WHERE provider_key = $1 AND plan_key = $2 AND expires_at > $3
		ORDER BY submitted_at DESC`,
		providerKey, planKey, now)
	if err != nil {
		return nil, fmt.Errorf("list active claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.VerificationClaim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func (s *PostgresStore) LatestIdentityClaim(ctx context.Context, identity, providerKey, planKey string) (*models.VerificationClaim, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM verification_claims
		WHERE provider_key = $1 AND plan_key = $2
		  AND (network_identity = $3 OR (contact_identity <> '' AND contact_identity = $3))
		ORDER BY submitted_at DESC
		LIMIT 1`,
		providerKey, planKey, identity)
	return scanClaim(row)
}

func (s *PostgresStore) PairHasClaims(ctx context.Context, providerKey, planKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM verification_claims WHERE provider_key = $1 AND plan_key = $2
		)`, providerKey, planKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pair has claims: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateClaimStatuses(ctx context.Context, pair models.PairKey, status models.Status, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_claims SET status = $1
		WHERE provider_key = $2 AND plan_key = $3 AND expires_at > $4`,
		string(status), pair.ProviderKey, pair.PlanKey, now)
	if err != nil {
		return fmt.Errorf("update claim statuses: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredClaims(ctx context.Context, now time.Time, limit int) ([]models.PairKey, int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("begin expiry tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, provider_key, plan_key FROM verification_claims
		WHERE expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("select expired claims: %w", err)
	}

	var ids []string
	pairSet := make(map[models.PairKey]struct{})
	for rows.Next() {
		var id uuid.UUID
		var pair models.PairKey
		if err := rows.Scan(&id, &pair.ProviderKey, &pair.PlanKey); err != nil {
			rows.Close()
			return nil, 0, 0, fmt.Errorf("scan expired claim: %w", err)
		}
		ids = append(ids, id.String())
		pairSet[pair] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	if len(ids) == 0 {
		return nil, 0, 0, tx.Commit()
	}

	var votesDeleted int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vote_records WHERE claim_id = ANY ($1::uuid[])`,
		pq.Array(ids)).Scan(&votesDeleted)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("count dependent votes: %w", err)
	}

	// Votes cascade with the claim rows.
	res, err := tx.ExecContext(ctx, `
		DELETE FROM verification_claims WHERE id = ANY ($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("delete expired claims: %w", err)
	}
	claimsDeleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, 0, 0, fmt.Errorf("commit expiry tx: %w", err)
	}

	pairs := make([]models.PairKey, 0, len(pairSet))
	for pair := range pairSet {
		pairs = append(pairs, pair)
	}
	return pairs, int(claimsDeleted), votesDeleted, nil
}

func (s *PostgresStore) ExpiryStats(ctx context.Context, now time.Time) (*ExpiryStats, error) {
	stats := &ExpiryStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE expires_at <= $1),
			COUNT(*) FILTER (WHERE expires_at > $1 AND expires_at <= $1 + INTERVAL '7 days'),
			COUNT(*) FILTER (WHERE expires_at > $1 AND expires_at <= $1 + INTERVAL '30 days'),
			COUNT(*) FILTER (WHERE expires_at > $1)
		FROM verification_claims`, now).
		Scan(&stats.ExpiredClaims, &stats.ExpiringIn7Days, &stats.ExpiringIn30Days, &stats.ActiveClaims)
	if err != nil {
		return nil, fmt.Errorf("expiry stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) ClaimStats(ctx context.Context) (*ClaimStats, error) {
	stats := &ClaimStats{}
	var oldest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(submitted_at) FROM verification_claims`).
		Scan(&stats.TotalClaims, &oldest)
	if err != nil {
		return nil, fmt.Errorf("claim stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestSubmittedAt = oldest.Time
	}
	return stats, nil
}

func (s *PostgresStore) GetVote(ctx context.Context, claimID uuid.UUID, voterIdentity string) (*models.VoteRecord, error) {
	vote := &models.VoteRecord{}
	var direction string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, claim_id, voter_identity, direction, cast_at
		FROM vote_records WHERE claim_id = $1 AND voter_identity = $2`,
		claimID, voterIdentity).
		Scan(&vote.ID, &vote.ClaimID, &vote.VoterIdentity, &direction, &vote.CastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	vote.Direction = models.VoteDirection(direction)
	return vote, nil
}

func (s *PostgresStore) InsertVote(ctx context.Context, vote *models.VoteRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vote_records (id, claim_id, voter_identity, direction, cast_at)
		VALUES ($1, $2, $3, $4, $5)`,
		vote.ID, vote.ClaimID, vote.VoterIdentity, string(vote.Direction), vote.CastAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return sentinel.ErrConflict
			case "foreign_key_violation":
				return sentinel.ErrNotFound
			}
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteVote(ctx context.Context, claimID uuid.UUID, voterIdentity string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM vote_records WHERE claim_id = $1 AND voter_identity = $2`,
		claimID, voterIdentity)
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountVotesForClaims(ctx context.Context, claimIDs []uuid.UUID) (models.VoteCounts, error) {
	var counts models.VoteCounts
	if len(claimIDs) == 0 {
		return counts, nil
	}
	ids := make([]string, len(claimIDs))
	for i, id := range claimIDs {
		ids[i] = id.String()
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE direction = 'UP'),
			COUNT(*) FILTER (WHERE direction = 'DOWN')
		FROM vote_records WHERE claim_id = ANY ($1::uuid[])`,
		pq.Array(ids)).Scan(&counts.Upvotes, &counts.Downvotes)
	if err != nil {
		return counts, fmt.Errorf("count votes: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) CountVotes(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vote_records`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count all votes: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) GetAggregate(ctx context.Context, providerKey, planKey string) (*models.AcceptanceAggregate, error) {
	agg := &models.AcceptanceAggregate{}
	var status string
	var lastVerified, expires sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT provider_key, plan_key, status, confidence_score, confidence_level,
			verification_count, agreement_ratio, last_verified_at, expires_at, updated_at
		FROM acceptance_aggregates WHERE provider_key = $1 AND plan_key = $2`,
		providerKey, planKey).
		Scan(&agg.ProviderKey, &agg.PlanKey, &status, &agg.ConfidenceScore, &agg.ConfidenceLevel,
			&agg.VerificationCount, &agg.AgreementRatio, &lastVerified, &expires, &agg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	agg.Status = models.Status(status)
	if lastVerified.Valid {
		agg.LastVerifiedAt = lastVerified.Time
	}
	if expires.Valid {
		agg.ExpiresAt = expires.Time
	}
	return agg, nil
}

func (s *PostgresStore) UpsertAggregate(ctx context.Context, agg *models.AcceptanceAggregate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acceptance_aggregates (provider_key, plan_key, status, confidence_score,
			confidence_level, verification_count, agreement_ratio, last_verified_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider_key, plan_key) DO UPDATE SET
			status = EXCLUDED.status,
			confidence_score = EXCLUDED.confidence_score,
			confidence_level = EXCLUDED.confidence_level,
			verification_count = EXCLUDED.verification_count,
			agreement_ratio = EXCLUDED.agreement_ratio,
			last_verified_at = EXCLUDED.last_verified_at,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`,
		agg.ProviderKey, agg.PlanKey, string(agg.Status), agg.ConfidenceScore,
		agg.ConfidenceLevel, agg.VerificationCount, agg.AgreementRatio,
		nullTime(agg.LastVerifiedAt), nullTime(agg.ExpiresAt), agg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAggregate(ctx context.Context, providerKey, planKey string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM acceptance_aggregates WHERE provider_key = $1 AND plan_key = $2`,
		providerKey, planKey)
	if err != nil {
		return fmt.Errorf("delete aggregate: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAggregatePairs(ctx context.Context, limit int) ([]models.PairKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider_key, plan_key FROM acceptance_aggregates
		ORDER BY provider_key, plan_key
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list aggregate pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.PairKey
	for rows.Next() {
		var pair models.PairKey
		if err := rows.Scan(&pair.ProviderKey, &pair.PlanKey); err != nil {
			return nil, fmt.Errorf("scan aggregate pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (s *PostgresStore) CountAggregates(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM acceptance_aggregates`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count aggregates: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.VerificationClaim, error) {
	claim := &models.VerificationClaim{}
	var provenance, status string
	err := row.Scan(&claim.ID, &claim.ProviderKey, &claim.PlanKey, &claim.Accepted,
		&provenance, &claim.Specialty, &claim.NetworkIdentity, &claim.ContactIdentity,
		&status, &claim.SubmittedAt, &claim.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	claim.Provenance = models.Provenance(provenance)
	claim.Status = models.Status(status)
	return claim, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

package tokens

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles token_blacklist persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a token blacklist repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Add revokes every token issued to userID up to now.
func (r *Repository) Add(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO token_blacklist (user_id, created_at) VALUES ($1, NOW())`, userID)
	return err
}

// isBlacklistedQuery compares at whole seconds: a JWT iat carries no sub-second part, so a token
// issued in the same second as a logout stays valid.
const isBlacklistedQuery = `SELECT EXISTS (
	SELECT 1 FROM token_blacklist
	WHERE user_id = $1 AND date_trunc('second', created_at) > $2
)`

// IsBlacklisted reports whether a token issued at issuedAt was revoked afterwards.
func (r *Repository) IsBlacklisted(ctx context.Context, userID uuid.UUID, issuedAt time.Time) (bool, error) {
	var revoked bool
	if err := r.pool.QueryRow(ctx, isBlacklistedQuery, userID, issuedAt.Truncate(time.Second)).Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

// DeleteOlderThan removes entries created before cutoff and returns how many were deleted.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM token_blacklist WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

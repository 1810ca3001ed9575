package livestreams

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/streamhub/internal/models"
)

// ErrInvalidID is returned when a stream or user id is not a UUID.
var ErrInvalidID = errors.New("invalid id")

// Repository handles livestream chat persistence and live stats.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a livestreams repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PersistChatMessage inserts a chat message and returns it with its server-assigned id and timestamp.
func (r *Repository) PersistChatMessage(ctx context.Context, streamID string, userID *string, userName, text string) (*models.ChatMessage, error) {
	sid, err := uuid.Parse(streamID)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", streamID, ErrInvalidID)
	}
	var uid *uuid.UUID
	if userID != nil {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", *userID, ErrInvalidID)
		}
		uid = &parsed
	}

	const q = `INSERT INTO chat_messages (livestream_id, user_id, user_name, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, livestream_id, user_id, user_name, text, created_at`
	var m models.ChatMessage
	err = r.pool.QueryRow(ctx, q, sid, uid, userName, text).Scan(&m.ID, &m.LivestreamID, &m.UserID, &m.UserName, &m.Text, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	return &m, nil
}

// StreamStats returns the live stats of a stream, or nil when the stream does not exist or is not live.
func (r *Repository) StreamStats(ctx context.Context, streamID string) (*models.StreamStats, error) {
	sid, err := uuid.Parse(streamID)
	if err != nil {
		return nil, nil
	}

	const q = `SELECT
		l.is_live,
		COUNT(DISTINCT sv.id) FILTER (WHERE sv.status = 'active'),
		COALESCE(l.viewers, 0),
		COUNT(DISTINCT cm.id),
		CASE WHEN l.is_live AND l.start_time IS NOT NULL
			THEN GREATEST(0, EXTRACT(EPOCH FROM (NOW() - l.start_time)))::BIGINT
			ELSE 0 END
		FROM livestreams l
		LEFT JOIN stream_viewers sv ON sv.livestream_id = l.id
		LEFT JOIN chat_messages cm ON cm.livestream_id = l.id
		WHERE l.id = $1
		GROUP BY l.id, l.is_live, l.start_time, l.viewers`
	var s models.StreamStats
	err = r.pool.QueryRow(ctx, q, sid).Scan(&s.IsLive, &s.CurrentViewers, &s.PeakViewers, &s.ChatMessages, &s.Duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query stream stats: %w", err)
	}
	if !s.IsLive {
		return nil, nil
	}
	return &s, nil
}

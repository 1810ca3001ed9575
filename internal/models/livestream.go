package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a chat line posted to a livestream.
type ChatMessage struct {
	ID           uuid.UUID  `json:"id"`
	LivestreamID uuid.UUID  `json:"livestream_id"`
	UserID       *uuid.UUID `json:"user_id"`
	UserName     string     `json:"user_name"`
	Text         string     `json:"text"`
	CreatedAt    time.Time  `json:"created_at"`
}

// StreamStats is the live summary pushed to stream subscribers. Derived, never stored.
type StreamStats struct {
	CurrentViewers int   `json:"current_viewers"`
	PeakViewers    int   `json:"peak_viewers"`
	ChatMessages   int   `json:"chat_messages"`
	Duration       int64 `json:"duration"` // seconds since the stream went live
	IsLive         bool  `json:"is_live"`
}

package tokens

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DefaultCleanupInterval is how often expired blacklist entries are deleted.
	DefaultCleanupInterval = 6 * time.Hour
	// DefaultRetention is how long a blacklist entry is kept. Tokens outlive it only if
	// they were issued with an expiry longer than the retention.
	DefaultRetention = 7 * 24 * time.Hour
)

// Store is the subset of the repository the cleaner needs.
type Store interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner periodically deletes expired token blacklist entries.
type Cleaner struct {
	store     Store
	clock     clockwork.Clock
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewCleaner creates a cleaner. Zero durations select the defaults.
func NewCleaner(store Store, clock clockwork.Clock, interval, retention time.Duration, logger *zap.Logger) *Cleaner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{store: store, clock: clock, interval: interval, retention: retention, logger: logger}
}

// Run cleans once immediately and then on every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	c.logger.Info("token cleanup started", zap.Duration("interval", c.interval), zap.Duration("retention", c.retention))
	_, _ = c.CleanOnce(ctx)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("token cleanup stopping")
			return
		case <-ticker.Chan():
			_, _ = c.CleanOnce(ctx)
		}
	}
}

// CleanOnce deletes entries older than the retention window.
func (c *Cleaner) CleanOnce(ctx context.Context) (int64, error) {
	cutoff := c.clock.Now().Add(-c.retention)
	n, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		c.logger.Error("token cleanup failed", zap.Error(err))
		return 0, err
	}
	c.logger.Info("cleaned up expired blacklist entries", zap.Int64("count", n))
	return n, nil
}

package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Reaper evicts connections that produced no inbound frame within the idle window.
type Reaper struct {
	registry    *Registry
	clock       clockwork.Clock
	interval    time.Duration
	idleTimeout time.Duration
	metrics     *Metrics
	logger      *zap.Logger
}

// NewReaper creates an idle reaper.
func NewReaper(registry *Registry, clock clockwork.Clock, interval, idleTimeout time.Duration, metrics *Metrics, logger *zap.Logger) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		registry:    registry,
		clock:       clock,
		interval:    interval,
		idleTimeout: idleTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run reaps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	runTicker(ctx, r.clock, r.interval, "reaper", r.logger, func(context.Context) { r.Tick() })
}

// Tick purges every stale connection, closes its transport and returns how many were evicted.
func (r *Reaper) Tick() int {
	now := r.clock.Now()
	stale := r.registry.SnapshotStale(r.idleTimeout, now)

	evicted := 0
	for _, conn := range stale {
		// A frame may have arrived since the snapshot; only evict if still idle.
		if !r.registry.PurgeIfIdle(conn, now.Add(-r.idleTimeout)) {
			continue
		}
		evicted++
		r.metrics.reaped()
		guard(r.logger, "reaper", func() {
			if err := conn.Close(); err != nil {
				r.logger.Debug("close idle connection", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
		})
	}
	if evicted > 0 {
		r.logger.Info("cleaned up stale websocket connections", zap.Int("count", evicted))
	}
	return evicted
}

package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// StatsBroadcaster pushes fresh stats to every stream channel whose stream is live.
type StatsBroadcaster struct {
	registry *Registry
	source   StatsSource
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration
	metrics  *Metrics
	logger   *zap.Logger
}

// NewStatsBroadcaster creates a stats broadcaster. timeout bounds each stats query.
func NewStatsBroadcaster(registry *Registry, source StatsSource, clock clockwork.Clock, interval, timeout time.Duration, metrics *Metrics, logger *zap.Logger) *StatsBroadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	if timeout <= 0 {
		timeout = DefaultCollaboratorTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsBroadcaster{
		registry: registry,
		source:   source,
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run broadcasts on every tick until ctx is cancelled.
func (s *StatsBroadcaster) Run(ctx context.Context) {
	if s.source == nil {
		s.logger.Warn("stats broadcaster disabled: no stats source")
		return
	}
	runTicker(ctx, s.clock, s.interval, "stats", s.logger, func(ctx context.Context) { s.Tick(ctx) })
}

// Tick pushes stats to each live stream channel and returns how many channels were served.
func (s *StatsBroadcaster) Tick(ctx context.Context) int {
	if s.source == nil {
		return 0
	}
	pushed := 0
	for _, streamID := range s.registry.StreamKeys() {
		if ctx.Err() != nil {
			return pushed
		}
		guard(s.logger, "stats", func() {
			if s.push(ctx, streamID) {
				pushed++
			}
		})
	}
	return pushed
}

func (s *StatsBroadcaster) push(ctx context.Context, streamID string) bool {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.source.StreamStats(qctx, streamID)
	if err != nil {
		s.logger.Warn("stream stats query failed", zap.String("stream_id", streamID), zap.Error(err))
		return false
	}
	if stats == nil {
		return false
	}
	data, err := encode(StatsMessage{Type: TypeStats, Stats: *stats})
	if err != nil {
		s.logger.Error("encode stats", zap.String("stream_id", streamID), zap.Error(err))
		return false
	}
	s.registry.Broadcast(StreamChannel(streamID), data)
	s.metrics.statsPushed()
	return true
}

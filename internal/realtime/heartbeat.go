package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Heartbeat pings every tracked connection so half-open sockets surface as write errors
// or silence. It never evicts; that is the reaper's job.
type Heartbeat struct {
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
	logger   *zap.Logger
}

// NewHeartbeat creates a heartbeat monitor.
func NewHeartbeat(registry *Registry, clock clockwork.Clock, interval time.Duration, logger *zap.Logger) *Heartbeat {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heartbeat{registry: registry, clock: clock, interval: interval, logger: logger}
}

// Run pings on every tick until ctx is cancelled.
func (hb *Heartbeat) Run(ctx context.Context) {
	runTicker(ctx, hb.clock, hb.interval, "heartbeat", hb.logger, func(context.Context) { hb.Tick() })
}

// Tick sends one ping to every connection and returns how many were queued.
func (hb *Heartbeat) Tick() int {
	sent := 0
	for _, conn := range hb.registry.Connections() {
		if err := conn.Send(pingFrame); err == nil {
			sent++
		}
	}
	hb.logger.Debug("heartbeat sent", zap.Int("pings", sent))
	return sent
}

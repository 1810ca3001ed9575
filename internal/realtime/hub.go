package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/aura-webinar/streamhub/internal/models"
)

// Default loop timings.
const (
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultReapInterval        = 60 * time.Second
	DefaultIdleTimeout         = 5 * time.Minute
	DefaultStatsInterval       = 3 * time.Second
	DefaultCollaboratorTimeout = 5 * time.Second
)

// ChatStore persists chat messages before they are broadcast.
type ChatStore interface {
	PersistChatMessage(ctx context.Context, streamID string, userID *string, userName, text string) (*models.ChatMessage, error)
}

// StatsSource reports a stream's live stats. It returns nil stats when the stream is not live.
type StatsSource interface {
	StreamStats(ctx context.Context, streamID string) (*models.StreamStats, error)
}

// Options tunes the hub. Zero values select the defaults.
type Options struct {
	MaxPerStream        int
	HeartbeatInterval   time.Duration
	ReapInterval        time.Duration
	IdleTimeout         time.Duration
	StatsInterval       time.Duration
	CollaboratorTimeout time.Duration
	SendBuffer          int
	// RatePerSecond and RateBurst limit inbound frames per connection; 0 disables the limit.
	RatePerSecond float64
	RateBurst     int
}

func (o Options) withDefaults() Options {
	if o.MaxPerStream <= 0 {
		o.MaxPerStream = DefaultMaxPerStream
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = DefaultReapInterval
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = DefaultStatsInterval
	}
	if o.CollaboratorTimeout <= 0 {
		o.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.RatePerSecond > 0 && o.RateBurst <= 0 {
		o.RateBurst = int(o.RatePerSecond)
		if o.RateBurst < 1 {
			o.RateBurst = 1
		}
	}
	return o
}

// Hub owns the registry, routes client frames and runs the background loops.
type Hub struct {
	opts     Options
	registry *Registry
	chats    ChatStore
	stats    StatsSource
	clock    clockwork.Clock
	metrics  *Metrics
	logger   *zap.Logger
	notifier *Notifier
}

// NewHub creates a hub. clock, metrics and logger may be nil.
func NewHub(opts Options, chats ChatStore, stats StatsSource, clock clockwork.Clock, metrics *Metrics, logger *zap.Logger) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	registry := NewRegistry(clock, opts.MaxPerStream, metrics)
	return &Hub{
		opts:     opts,
		registry: registry,
		chats:    chats,
		stats:    stats,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		notifier: NewNotifier(registry, logger),
	}
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Notifier returns the push API for collaborators.
func (h *Hub) Notifier() *Notifier { return h.notifier }

// Options returns the effective options.
func (h *Hub) Options() Options { return h.opts }

// Run starts the heartbeat, reaper and stats loops and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	loops := []interface{ Run(context.Context) }{
		NewHeartbeat(h.registry, h.clock, h.opts.HeartbeatInterval, h.logger),
		NewReaper(h.registry, h.clock, h.opts.ReapInterval, h.opts.IdleTimeout, h.metrics, h.logger),
		NewStatsBroadcaster(h.registry, h.stats, h.clock, h.opts.StatsInterval, h.opts.CollaboratorTimeout, h.metrics, h.logger),
	}
	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(l interface{ Run(context.Context) }) {
			defer wg.Done()
			l.Run(ctx)
		}(l)
	}
	h.logger.Info("realtime hub started",
		zap.Duration("heartbeat_interval", h.opts.HeartbeatInterval),
		zap.Duration("reap_interval", h.opts.ReapInterval),
		zap.Duration("idle_timeout", h.opts.IdleTimeout),
		zap.Duration("stats_interval", h.opts.StatsInterval),
		zap.Int("max_per_stream", h.opts.MaxPerStream),
	)
	wg.Wait()
	h.logger.Info("realtime hub stopped")
}

// Serve runs the read loop for an accepted client until the socket closes, then purges it.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	router := h.NewRouter(c, c.UserID)
	c.setup(func() { h.registry.Touch(c) })
	h.registry.Touch(c)

	defer func() {
		h.registry.Purge(c)
		_ = c.Close()
		h.logger.Debug("connection closed", zap.String("conn_id", c.ID()))
	}()

	for {
		data, err := c.ReadFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("websocket read failed", zap.String("conn_id", c.ID()), zap.Error(err))
			}
			return
		}
		router.Handle(ctx, data)
	}
}

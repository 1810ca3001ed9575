package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// runTicker calls tick every interval until ctx is cancelled.
func runTicker(ctx context.Context, clock clockwork.Clock, interval time.Duration, name string, logger *zap.Logger, tick func(context.Context)) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("background loop stopping", zap.String("loop", name))
			return
		case <-ticker.Chan():
			guard(logger, name, func() { tick(ctx) })
		}
	}
}

// guard runs fn and logs a panic instead of letting it kill the calling loop.
func guard(logger *zap.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("background task panicked", zap.String("loop", name), zap.Any("panic", r))
		}
	}()
	fn()
}

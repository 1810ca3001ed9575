// Package main runs the live stream connection hub: WebSocket endpoint, background hub loops,
// token blacklist cleanup and the cross-instance notification relay.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/streamhub/config"
	"github.com/aura-webinar/streamhub/internal/auth"
	"github.com/aura-webinar/streamhub/internal/livestreams"
	"github.com/aura-webinar/streamhub/internal/middleware"
	"github.com/aura-webinar/streamhub/internal/realtime"
	"github.com/aura-webinar/streamhub/internal/tokens"
	"github.com/aura-webinar/streamhub/pkg/database"
	"github.com/aura-webinar/streamhub/pkg/redis"
	"github.com/aura-webinar/streamhub/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		newLogger("info").Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := realtime.NewMetrics(reg)

	clock := clockwork.NewRealClock()
	streamRepo := livestreams.NewRepository(pool)
	hub := realtime.NewHub(realtime.Options{
		MaxPerStream:        cfg.Hub.MaxPerStream,
		HeartbeatInterval:   cfg.Hub.HeartbeatInterval,
		ReapInterval:        cfg.Hub.ReapInterval,
		IdleTimeout:         cfg.Hub.IdleTimeout,
		StatsInterval:       cfg.Hub.StatsInterval,
		CollaboratorTimeout: cfg.Hub.CollaboratorTimeout,
		SendBuffer:          cfg.Hub.SendBuffer,
		RatePerSecond:       cfg.Hub.RatePerSecond,
		RateBurst:           cfg.Hub.RateBurst,
	}, streamRepo, streamRepo, clock, metrics, logger)

	tokenRepo := tokens.NewRepository(pool)
	var (
		authenticator *auth.Authenticator
		validate      realtime.TokenValidator
	)
	if cfg.JWT.Secret != "" {
		authenticator = auth.NewAuthenticator(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours), tokenRepo)
		validate = authenticator.UserID
	} else {
		logger.Warn("JWT_SECRET not set: websocket connections are anonymous, /admin endpoints and /auth/logout are disabled")
	}

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(hub.Run)
	run(tokens.NewCleaner(tokenRepo, clock, cfg.Tokens.CleanupInterval, cfg.Tokens.Retention, logger).Run)

	publisher := realtime.LocalPublisher(hub.Notifier())
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		bridge := realtime.NewRedisPubSub(rdb.Client, logger)
		publisher = bridge
		run(func(ctx context.Context) {
			if err := bridge.Relay(ctx, hub.Notifier()); err != nil {
				logger.Error("notification relay stopped", zap.Error(err))
			}
		})
	} else {
		logger.Info("REDIS_ADDR not set: cross-instance notifications disabled")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "hub": hub.Registry().Stats()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	if authenticator != nil {
		router.POST("/auth/logout", middleware.JWT(authenticator), tokens.NewHandler(tokenRepo, logger).Logout)
	}

	registerAdmin(router, authenticator, hub, publisher, logger)

	// WebSocket (token in query; anonymous connections allowed)
	router.GET("/ws", realtime.ServeWs(hub, middleware.AllowOrigin(cfg.Server.CORSAllowedOrigins), validate, logger))

	// No WriteTimeout: it would cut long-lived WebSocket connections.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
}

// registerAdmin mounts the admin endpoints behind JWT + admin role. Without an authenticator
// they are not mounted at all.
func registerAdmin(router gin.IRouter, authenticator *auth.Authenticator, hub *realtime.Hub, publisher realtime.Publisher, logger *zap.Logger) bool {
	if authenticator == nil {
		return false
	}
	admin := router.Group("/admin", middleware.JWT(authenticator), middleware.RequireRole("admin"))
	admin.GET("/ws/stats", realtime.StatsHandler(hub))
	admin.GET("/ws/streams/:id", realtime.StreamConnectionsHandler(hub))
	admin.POST("/notifications", realtime.NotifyHandler(publisher, logger))
	return true
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/observer/gigline/internal/api"
	"github.com/observer/gigline/internal/auth"
	"github.com/observer/gigline/internal/config"
	"github.com/observer/gigline/internal/database"
	"github.com/observer/gigline/internal/middleware"
	"github.com/observer/gigline/internal/notification"
	"github.com/observer/gigline/internal/pubsub"
	"github.com/observer/gigline/internal/server"
	"github.com/observer/gigline/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Create context for initialization
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := database.Open(initCtx, cfg.StoreType, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize PubSub (in-memory for single instance, Redis when scaled out)
	ps, err := pubsub.New(cfg.PubSubType, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer ps.Close()

	// Initialize token service (use a default key for dev if not set)
	jwtKey := cfg.JWTSigningKey
	if jwtKey == "" {
		if !cfg.IsDevelopment() {
			return errors.New("JWT_SIGNING_KEY is required in production")
		}
		jwtKey = "dev-signing-key-do-not-use-in-production!!"
		slog.Warn("using default JWT signing key - DO NOT USE IN PRODUCTION")
	}

	tokenService, err := auth.NewTokenService(jwtKey, cfg.AccessTokenTTL)
	if err != nil {
		return err
	}
	authService := auth.NewService(store.Users, tokenService)
	authenticator := auth.NewAuthenticator(tokenService, store.Users)
	dispatcher := notification.NewDispatcher(store.Notifications, logger)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Realtime core
	hub := websocket.NewHub(websocket.Config{
		HeartbeatInterval:   cfg.HeartbeatInterval,
		TypingTimeout:       cfg.TypingTimeout,
		StaleSessionTimeout: cfg.StaleSessionTimeout,
		MaxMessageLength:    cfg.MaxMessageLength,
		EventsPerSecond:     cfg.EventsPerSecond,
		EventBurst:          cfg.EventBurst,
		StoreTimeout:        cfg.StoreTimeout,
	}, websocket.Deps{
		Chats:         store.Chats,
		Users:         store.Users,
		Notifications: dispatcher,
		PubSub:        ps,
		Metrics:       websocket.NewMetrics(reg),
	}, logger)
	websocket.RegisterHubGauges(reg, hub)
	scheduler := websocket.NewScheduler(hub, cfg.TypingSweepInterval, cfg.StaleSweepInterval, cfg.HeartbeatSweepInterval, logger)

	// REST handlers push realtime events through pubsub so any instance can deliver them
	broadcaster := websocket.NewPubSubBroadcaster(ps)
	rateLimiter := middleware.NewRateLimiter(cfg.APIRequestsPerMin)

	// Redis pub/sub must be reachable for cross-instance pushes; the memory backend always is
	readiness := map[string]api.HealthChecker{"database": store}
	if hc, ok := ps.(api.HealthChecker); ok {
		readiness["pubsub"] = hc
	}

	deps := &server.Dependencies{
		Tokens:              authService,
		RateLimiter:         rateLimiter,
		AuthHandler:         api.NewAuthHandler(authService, store.Users, !cfg.IsDevelopment(), logger),
		UserHandler:         api.NewUserHandler(store.Users, hub.Registry(), logger),
		ChatHandler:         api.NewChatHandler(store.Chats, logger),
		NotificationHandler: api.NewNotificationHandler(dispatcher, store.Users, broadcaster, logger),
		StatusHandler:       api.NewStatusHandler(readiness, hub, logger),
		WSHandler:           websocket.NewHandler(hub, authenticator, logger),
		Metrics:             reg,
		Logger:              logger,
	}
	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return rateLimiter.Run(ctx, time.Minute) })
	g.Go(func() error {
		slog.Info("starting server", "addr", cfg.ServerAddr, "store", cfg.StoreType, "pubsub", cfg.PubSubType)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down gracefully...")

		// Give active connections 10 seconds to finish
		timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(timeoutCtx); err != nil {
			slog.Error("forced shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("server stopped")
	return err
}

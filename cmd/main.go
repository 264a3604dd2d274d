package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/adapters"
	"github.com/satriahrh/panoguide/adapters/geocode"
	mongostore "github.com/satriahrh/panoguide/adapters/mongo"
	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/api"
	"github.com/satriahrh/panoguide/internal/auth"
	"github.com/satriahrh/panoguide/internal/config"
	"github.com/satriahrh/panoguide/internal/live"
	"github.com/satriahrh/panoguide/internal/logging"
	"github.com/satriahrh/panoguide/internal/metrics"
	"github.com/satriahrh/panoguide/internal/tools"
	"github.com/satriahrh/panoguide/internal/websocket"
	"github.com/satriahrh/panoguide/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, closeLogger, err := logging.New(cfg.Log, !cfg.Environment.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLogger()

	ctx := context.Background()
	m := metrics.New()

	// Initialize adapters
	sessionRepo, closeStore := newSessionRepository(ctx, cfg, logger)
	defer closeStore()

	registry, err := tools.NewRegistry()
	if err != nil {
		logger.Fatal("Failed to build tool registry", zap.Error(err))
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to initialize token manager", zap.Error(err))
	}

	geocoder, rdb := newGeocoder(ctx, cfg, m, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(sessionRepo, registry, geocoder, m, websocket.HubConfig{
		Conversation: usecase.ConversationConfig{
			Live: live.Config{
				APIKey:       cfg.Gemini.APIKey,
				Model:        cfg.Gemini.LiveModel,
				URL:          cfg.Gemini.LiveURL,
				Voice:        cfg.Gemini.Voice,
				EnableSearch: cfg.Gemini.EnableSearch,
			},
			ContextInterval: cfg.Guide.ContextInterval,
		},
		Navigation: usecase.NavigationConfig{
			RotateDuration: cfg.Guide.RotateDuration,
			StepTolerance:  cfg.Guide.StepTolerance,
			SearchRadius:   cfg.Guide.SearchRadius,
		},
		ViewerTimeout: cfg.Guide.ViewerTimeout,
	}, logger)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	cleanup := websocket.NewSessionCleanupService(sessionRepo, m, cfg.Guide.CleanupInterval, logger)
	cleanup.Start()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, sessionRepo, tokens, m, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("environment", string(cfg.Environment)))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stopHub()
	cleanup.Stop()

	logger.Info("Server exited")
}

// newGeocoder builds the Gemini geocoder, fronted by the Redis cache when one
// is configured. An unreachable Redis leaves the geocoder uncached.
func newGeocoder(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (repositories.Geocoder, *redis.Client) {
	gem, err := geocode.NewGeminiGeocoder(ctx, cfg.Gemini.APIKey, cfg.Gemini.GeocodeModel, logger)
	if err != nil {
		logger.Fatal("Failed to initialize geocoder", zap.Error(err))
	}
	if !cfg.Redis.Enabled() {
		return gem, nil
	}

	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logger.Warn("Redis unavailable, geocoding without cache", zap.Error(err))
		return gem, nil
	}
	logger.Info("Geocode cache enabled", zap.Duration("ttl", cfg.Redis.CacheTTL))
	return geocode.NewCachedGeocoder(gem, rdb, cfg.Redis.CacheTTL, m, logger), rdb
}

// newSessionRepository stores sessions in MongoDB when it is configured and in
// memory otherwise.
func newSessionRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SessionRepository, func()) {
	if !cfg.Mongo.Enabled() {
		logger.Info("Using in-memory session store")
		return adapters.NewMemorySessionRepository(logger), func() {}
	}

	client, err := mongostore.NewClient(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	repo := mongostore.NewSessionRepository(client.Database, cfg.Mongo.Retention, logger)
	return repo, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(closeCtx)
	}
}

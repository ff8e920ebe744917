// pairroom - real-time interview room server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/pairroom/internal/api"
	"github.com/ashureev/pairroom/internal/config"
	"github.com/ashureev/pairroom/internal/identity"
	"github.com/ashureev/pairroom/internal/middleware"
	"github.com/ashureev/pairroom/internal/questions"
	"github.com/ashureev/pairroom/internal/realtime"
	"github.com/ashureev/pairroom/internal/room"
	"github.com/ashureev/pairroom/internal/router"
	"github.com/ashureev/pairroom/internal/shared"
	"github.com/ashureev/pairroom/internal/store"
	"github.com/ashureev/pairroom/internal/sweeper"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.Database.Driver)

	// Initialize dependencies.
	repo, err := openRepository(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	catalog, err := questions.Load()
	if err != nil {
		slog.Error("Failed to load question bank", "error", err)
		os.Exit(1)
	}
	slog.Info("Question bank loaded", "questions", catalog.Len())

	retry := shared.RetryPolicy{
		MaxRetries: cfg.Database.MaxRetries,
		BaseDelay:  cfg.Database.RetryBaseDelay,
	}

	// Initialize services.
	registry := room.NewRegistry(room.RegistryOptions{
		Timer: room.TimerConfig{
			DefaultSeconds: cfg.Room.TimerDefaultSeconds,
			MaxSeconds:     cfg.Room.TimerMaxSeconds,
		},
		Limits: room.Limits{
			ChatMaxLength:  cfg.Room.ChatMaxLength,
			ChatMaxHistory: cfg.Room.ChatMaxHistory,
		},
	})
	hub := realtime.NewHub(cfg.Room.SendBuffer)
	events := router.New(registry, hub, repo, router.Options{
		InterviewerControls: cfg.Room.InterviewerControls,
		Retry:               retry,
		Questions:           catalog,
	})
	registry.SetTimerListener(events)

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, registry, catalog, api.Options{
		RoomTTL:         cfg.Room.TTL,
		DefaultCapacity: cfg.Room.Capacity,
	})
	healthHandler := api.NewHealthHandler(repo, registry, hub)
	wsHandler := realtime.NewWebSocketHandler(hub, events, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.FrontendURL))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))
		apiHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint. Participants are validated per join-room event.
	r.Get("/ws", wsHandler.ServeHTTP)

	// WriteTimeout stays 0 so long-lived WebSocket connections are not cut.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start expiry sweeper.
	sweeper.New(repo, events, retry).Start(ctx, cfg.Room.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop timers, then drop connections.
	registry.Shutdown()
	hub.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// openRepository builds the configured store, wrapped in the Redis cache when
// REDIS_ADDR is set.
func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	var repo store.Repository
	switch cfg.Database.Driver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		mongoStore, err := store.NewMongo(connectCtx, cfg.Database.MongoURI, cfg.Database.MongoDatabase)
		if err != nil {
			return nil, err
		}
		repo = mongoStore
	default:
		sqliteStore, err := store.NewSQLite(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		repo = sqliteStore
	}

	if cfg.Redis.Addr == "" {
		slog.Info("Room cache disabled (REDIS_ADDR not set)")
		return repo, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		_ = repo.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	slog.Info("Room cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	return store.NewCachedRepository(repo, client, cfg.Redis.TTL), nil
}

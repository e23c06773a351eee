package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/auth"
	"github.com/freeeve/mare-nostrum/internal/cards"
	"github.com/freeeve/mare-nostrum/internal/config"
	"github.com/freeeve/mare-nostrum/internal/handler"
	"github.com/freeeve/mare-nostrum/internal/logger"
	"github.com/freeeve/mare-nostrum/internal/middleware"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/internal/repository/memory"
	"github.com/freeeve/mare-nostrum/internal/repository/postgres"
	redisrepo "github.com/freeeve/mare-nostrum/internal/repository/redis"
	"github.com/freeeve/mare-nostrum/internal/repository/sqlite"
	"github.com/freeeve/mare-nostrum/internal/service"
)

// openStore connects the storage backend named by cfg.StorageDriver. The
// returned redis client is nil unless the backend uses redis.
func openStore(cfg *config.Config) (*repository.Store, *redisrepo.Client, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		redisClient, err := redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		// Enable Redis keyspace notifications for timer expiry events.
		if err := redisClient.EnableExpiryEvents(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (deadlines fall back to polling)")
		}
		store := postgres.NewStore(db)
		store.Cache = redisClient
		store.Close = func() error {
			redisClient.Close()
			return db.Close()
		}
		return store, redisClient, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store := db.Store()
		store.Cache = memory.NewCache()
		return store, nil, nil
	case config.DriverMemory:
		return memory.New().Store(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("storage", cfg.StorageDriver).Dur("phaseDuration", cfg.PhaseDuration).Msg("Config loaded")

	deck, err := cards.Load(cfg.CardsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CardsPath).Msg("Failed to load cards")
	}

	store, redisClient, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Storage connection failed")
	}
	defer store.Close()

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	engineSvc := service.NewEngineService(store.Games, store.Phases, store.Commands, store.Cache, deck,
		service.Fanout(wsHub, service.LogBroadcaster{}))
	gameSvc := service.NewGameService(store.Games, store.Users, store.Cache, engineSvc, cfg.PhaseDuration)

	// Timer listener (defaults on expiry)
	var rdb *goredis.Client
	if redisClient != nil {
		rdb = redisClient.Underlying()
	}
	timerListener := service.NewTimerListener(rdb, engineSvc, store.Phases)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, store.Users)
	userHandler := handler.NewUserHandler(store.Users, store.Games)
	gameHandler := handler.NewGameHandler(gameSvc, engineSvc, store.Phases, wsHub)
	commandHandler := handler.NewCommandHandler(engineSvc, wsHub)
	phaseHandler := handler.NewPhaseHandler(store.Phases, store.Commands)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, store.Games, cfg.AllowedOrigins)

	// Commands are limited per user; the auth middleware runs first.
	cmdLimiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, func(r *http.Request) string {
		return auth.UserIDFromContext(r.Context())
	})
	limited := func(h http.HandlerFunc) http.Handler { return cmdLimiter.Middleware(h) }

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)
	api.HandleFunc("POST /games", gameHandler.CreateGame)
	api.HandleFunc("GET /games", gameHandler.ListGames)
	api.HandleFunc("GET /games/{id}", gameHandler.GetGame)
	api.HandleFunc("POST /games/{id}/join", gameHandler.JoinGame)
	api.HandleFunc("POST /games/{id}/start", gameHandler.StartGame)
	api.HandleFunc("GET /games/{id}/state", gameHandler.GameState)
	api.HandleFunc("GET /games/{id}/moves", gameHandler.Moves)
	api.Handle("POST /games/{id}/commands", limited(commandHandler.SubmitCommand))
	api.Handle("POST /games/{id}/pass", limited(commandHandler.Pass))
	api.Handle("POST /games/{id}/advance", limited(gameHandler.Advance))
	api.HandleFunc("GET /games/{id}/phases", phaseHandler.ListPhases)
	api.HandleFunc("GET /games/{id}/phases/current", phaseHandler.CurrentPhase)
	api.HandleFunc("GET /games/{id}/phases/{phaseId}/commands", phaseHandler.PhaseCommands)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.Recover, middleware.CORS(cfg.AllowedOrigins), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Recover active games (rebuild cached state and timers after restart)
	if err := engineSvc.RecoverActiveGames(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active games (non-fatal)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timerListener.Start(ctx)

	// Drop idle rate limit buckets.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := cmdLimiter.Prune(30 * time.Minute); n > 0 {
					log.Debug().Int("pruned", n).Msg("Pruned rate limit buckets")
				}
			}
		}
	}()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}

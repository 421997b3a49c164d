package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/secgame/api/internal/attack"
	"github.com/freeeve/secgame/api/internal/auth"
	"github.com/freeeve/secgame/api/internal/config"
	"github.com/freeeve/secgame/api/internal/handler"
	"github.com/freeeve/secgame/api/internal/logger"
	"github.com/freeeve/secgame/api/internal/metrics"
	"github.com/freeeve/secgame/api/internal/middleware"
	"github.com/freeeve/secgame/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/secgame/api/internal/repository/redis"
	"github.com/freeeve/secgame/api/internal/service"
)

func main() {
	defer logger.Setup(logger.OptionsFromEnv())()
	cfg := config.Load()
	log.Info().
		Str("databaseURL", cfg.DatabaseURL).
		Str("catalogURL", cfg.CatalogURL).
		Dur("catalogTTL", cfg.CatalogTTL).
		Int("simWorkers", cfg.SimWorkers).
		Msg("Config loaded")

	ctx := context.Background()

	// Database
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Database migration failed")
	}

	// Redis
	redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Repos
	analysisRepo := postgres.NewAnalysisRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	reg := metrics.NewRegistry()
	catalogs := attack.NewSource(cfg.CatalogURL, cfg.CatalogTTL, redisClient)
	analysisSvc := service.NewAnalysisService(analysisRepo, redisClient, catalogs, wsHub, reg,
		service.Limits{Workers: cfg.SimWorkers, MaxCells: cfg.SimMaxCells})

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr)
	analysisHandler := handler.NewAnalysisHandler(analysisSvc)
	catalogHandler := handler.NewCatalogHandler(analysisSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, analysisSvc, cfg.AllowedOrigin)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("Readiness: postgres unreachable")
			http.Error(w, `{"status":"postgres unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Readiness: redis unreachable")
			http.Error(w, `{"status":"redis unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})
	mux.Handle("GET /metrics", reg.Handler())

	// Auth (public)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("POST /analyses", analysisHandler.CreateAnalysis)
	api.HandleFunc("GET /analyses", analysisHandler.ListAnalyses)
	api.HandleFunc("GET /analyses/{id}", analysisHandler.GetAnalysis)
	api.HandleFunc("DELETE /analyses/{id}", analysisHandler.CancelAnalysis)
	api.HandleFunc("GET /catalogs/{domain}/tactics", catalogHandler.ListTactics)
	api.HandleFunc("GET /catalogs/{domain}/mitigations", catalogHandler.ListMitigations)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Metrics(reg), middleware.Logger, middleware.CORS(cfg.AllowedOrigin), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Running analyses are cancelled and stored as cancelled.
	analysisSvc.Shutdown()
	log.Info().Msg("Server stopped")
}

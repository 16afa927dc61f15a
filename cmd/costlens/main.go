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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/container"
	"github.com/costlens/backend/internal/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx := context.Background()
	ctr, err := container.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://*.costlens.io"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := ctr.DB().PingContext(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(ctr.AccountRepository(), cfg.EncryptionKey)
	syncHandler := handler.NewSyncHandler(ctr.Syncer())
	costHandler := handler.NewCostHandler(ctr.CostRepository())
	anomalyHandler := handler.NewAnomalyHandler(ctr.AnomalyEngine())
	forecastHandler := handler.NewForecastHandler(ctr.ForecastEngine())
	recommendationHandler := handler.NewRecommendationHandler(ctr.RecommendEngine())
	syncLimiter := handler.NewSyncRateLimiter(cfg.Sync)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handler.RequireUser)

		// Provider accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", accountHandler.List)
			r.Post("/", accountHandler.Create)
			r.Get("/{id}", accountHandler.Get)
			r.Patch("/{id}", accountHandler.Update)
			r.Delete("/{id}", accountHandler.Delete)
			r.With(syncLimiter.Middleware).Post("/{id}/sync", syncHandler.SyncAccount)
		})

		// Sync
		r.With(syncLimiter.Middleware).Post("/sync", syncHandler.SyncAll)

		// Costs
		r.Get("/costs/summary", costHandler.Summary)
		r.Get("/costs/trend", costHandler.Trend)

		// Anomalies
		r.Get("/anomalies", anomalyHandler.List)

		// Forecast and scenarios
		r.Get("/forecast", forecastHandler.Baseline)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", forecastHandler.ListScenarios)
			r.Post("/", forecastHandler.CreateScenario)
			r.Post("/preview", forecastHandler.PreviewScenario)
			r.Get("/{id}", forecastHandler.GetScenario)
			r.Put("/{id}", forecastHandler.UpdateScenario)
			r.Delete("/{id}", forecastHandler.DeleteScenario)
			r.Post("/{id}/compute", forecastHandler.ComputeScenario)
		})

		// Recommendations
		r.Get("/recommendations", recommendationHandler.List)
		r.Patch("/recommendations/{id}", recommendationHandler.UpdateStatus)
	})

	// Start background jobs
	ctr.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	ctr.Stop()
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// Command server runs the hushboard web application.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hushboard/hushboard/internal/config"
	"github.com/hushboard/hushboard/internal/database"
	"github.com/hushboard/hushboard/internal/handler/web"
	"github.com/hushboard/hushboard/internal/middleware"
	"github.com/hushboard/hushboard/internal/pkg/response"
	"github.com/hushboard/hushboard/internal/repository"
	"github.com/hushboard/hushboard/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Database
	pg, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database ready", slog.String("host", cfg.Database.Host))

	// Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer rdb.Close()
	logger.Info("redis ready", slog.String("addr", cfg.Redis.Addr()))

	// Repositories and services
	userRepo := repository.NewUserRepository(pg.Pool())
	sessionRepo := repository.NewSessionRepository(rdb)
	authService := service.NewAuthService(&cfg.Auth, userRepo, sessionRepo)
	oauthService := service.NewOAuthService(&cfg.Auth, userRepo, authService)

	if !oauthService.Enabled() {
		logger.Warn("google login disabled, no oauth credentials configured")
	}

	// Cookie store for the browser-side session reference
	sessionStore := sessions.NewCookieStore([]byte(cfg.Auth.SessionSecret))

	handler, err := web.NewHandler(authService, oauthService, userRepo, sessionStore, cfg.Auth.SessionExpiry, logger)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	// Router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.RateLimit(rdb, middleware.DefaultRateLimitConfig()))

	// Operational endpoints
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, "database")
			return
		}
		if err := rdb.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, "redis")
			return
		}
		response.OK(w, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	credLimit := middleware.RateLimit(rdb, middleware.CredentialRateLimitConfig())
	r.Mount("/", handler.Routes(credLimit))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

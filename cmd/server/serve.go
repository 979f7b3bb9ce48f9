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

	"github.com/ashureev/selve/internal/api"
	"github.com/ashureev/selve/internal/identity"
	"github.com/ashureev/selve/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "Listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command) error {
	logger := slog.Default()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "mode", cfg.QuestionMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if cfg.Catalog.BankPath != "" {
		n, err := seedFromFile(ctx, repo, cfg.Catalog.BankPath)
		if err != nil {
			return fmt.Errorf("seed question bank: %w", err)
		}
		slog.Info("Question bank seeded", "path", cfg.Catalog.BankPath, "questions", n)
	}

	deps, err := buildServices(cfg, repo, logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	slog.Info("Assessment service ready", "mode", deps.svc.Mode(), "driver", cfg.DB.Driver)

	if deps.catalog != nil {
		// Seeding may have changed the bank under a warm cache.
		if err := deps.catalog.Invalidate(ctx); err != nil {
			slog.Warn("Failed to invalidate catalog cache", "error", err)
		}
	}

	// Initialize handlers.
	handler := api.NewHandler(deps.svc, logger)
	checks := map[string]api.Pinger{"database": repo}
	if deps.cache != nil {
		checks["cache"] = deps.cache
	}
	healthHandler := api.NewHealthHandler(cfg.StoreTimeout, checks)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Identity is optional; anonymous sessions are allowed.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(identity.NewVerifier(cfg.JWTSecret)))
		handler.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Wait for shutdown signal.
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/selve/internal/adaptive"
	"github.com/ashureev/selve/internal/assessment"
	"github.com/ashureev/selve/internal/catalog"
	"github.com/ashureev/selve/internal/config"
	"github.com/ashureev/selve/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "selve",
	Short:         "SELVE assessment session service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database path or URL (overrides DB_PATH / DATABASE_URL)")
	rootCmd.PersistentFlags().String("driver", "", "Store driver: sqlite, postgres or memory (overrides DB_DRIVER)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(takeCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if d, _ := cmd.Flags().GetString("driver"); d != "" {
		cfg.DB.Driver = d
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		if cfg.DB.Driver == store.DriverPostgres {
			cfg.DB.URL = p
		} else {
			cfg.DB.Path = p
		}
	}
	if cmd.Flags().Lookup("port") != nil {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore connects to the configured store and verifies it responds.
func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	repo, err := store.Open(cfg.DB.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DB.Driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := repo.Ping(pingCtx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "driver", cfg.DB.Driver)
	return repo, nil
}

// seedFromFile loads a YAML bank into repo.
func seedFromFile(ctx context.Context, repo store.Repository, path string) (int, error) {
	bank, err := catalog.LoadFile(path)
	if err != nil {
		return 0, err
	}
	if err := catalog.Seed(ctx, repo, bank); err != nil {
		return 0, err
	}
	return len(bank.Questions), nil
}

// services bundles everything the HTTP layer depends on.
type services struct {
	svc     *assessment.Service
	cache   *catalog.RedisCache
	catalog *catalog.Cached
	engine  *adaptive.Client
}

func (s *services) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Error("Failed to close catalog cache", "error", err)
		}
	}
}

func buildServices(cfg *config.Config, repo store.Repository, logger *slog.Logger) (*services, error) {
	out := &services{}
	opts := assessment.Options{
		Mode:         assessment.Mode(cfg.QuestionMode),
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	}

	var src catalog.Source = catalog.NewStoreSource(repo)
	if cfg.Catalog.RedisURL != "" {
		cache, err := catalog.NewRedisCache(cfg.Catalog.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("catalog cache: %w", err)
		}
		out.cache = cache
		out.catalog = catalog.NewCached(src, cache, cfg.Catalog.CacheTTL, logger)
		src = out.catalog
		slog.Info("Catalog cache enabled", "ttl", cfg.Catalog.CacheTTL)
	}
	opts.Catalog = src

	if opts.Mode == assessment.ModeAdaptive {
		engine, err := adaptive.NewClient(adaptive.ClientConfig{
			BaseURL: cfg.Adaptive.URL,
			Timeout: cfg.Adaptive.Timeout,
		}, logger)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("adaptive client: %w", err)
		}
		out.engine = engine
		opts.Engine = engine
		slog.Info("Adaptive engine configured", "url", cfg.Adaptive.URL, "timeout", cfg.Adaptive.Timeout)
	}

	svc, err := assessment.NewService(repo, opts)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.svc = svc
	return out, nil
}

const shutdownTimeout = 10 * time.Second

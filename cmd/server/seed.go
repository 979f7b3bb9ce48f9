package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/selve/internal/catalog"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// Opening a SQL store applies the schema.
		repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()
		slog.Info("Schema is up to date", "driver", cfg.DB.Driver)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a YAML question bank into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.Catalog.BankPath
		}
		if path == "" {
			return errors.New("no question bank: pass --file or set QUESTION_BANK")
		}

		repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		n, err := seedFromFile(cmd.Context(), repo, path)
		if err != nil {
			return fmt.Errorf("seed %s: %w", path, err)
		}

		if cfg.Catalog.RedisURL != "" {
			cache, err := catalog.NewRedisCache(cfg.Catalog.RedisURL)
			if err != nil {
				return err
			}
			defer cache.Close()
			if err := cache.Del(cmd.Context(), catalog.CacheKey); err != nil {
				slog.Warn("Failed to invalidate catalog cache", "error", err)
			}
		}

		slog.Info("Question bank seeded", "path", path, "questions", n)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringP("file", "f", "", "YAML question bank (defaults to QUESTION_BANK)")
}

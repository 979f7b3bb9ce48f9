// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	DB             DBConfig
	StoreTimeout   time.Duration
	QuestionMode   string // "local" walks the bank, "adaptive" asks the engine
	Adaptive       AdaptiveConfig
	JWTSecret      string
	Catalog        CatalogConfig
}

// DBConfig selects and locates the backing store.
type DBConfig struct {
	Driver string // sqlite, postgres or memory
	Path   string
	URL    string
}

// AdaptiveConfig points at the external question-selection engine.
type AdaptiveConfig struct {
	URL     string
	Timeout time.Duration
}

// CatalogConfig controls question bank seeding and caching.
type CatalogConfig struct {
	BankPath string
	RedisURL string
	CacheTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data/selve.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		QuestionMode: getEnv("QUESTION_MODE", "local"),
		Adaptive: AdaptiveConfig{
			URL:     getEnv("ADAPTIVE_URL", "http://localhost:8090"),
			Timeout: getEnvDuration("ADAPTIVE_TIMEOUT", 10*time.Second),
		},
		JWTSecret: getEnv("JWT_SECRET", ""),
		Catalog: CatalogConfig{
			BankPath: getEnv("QUESTION_BANK", ""),
			RedisURL: getEnv("REDIS_URL", ""),
			CacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
		},
	}
	cfg.AllowedOrigins = parseOrigins(getEnv("ALLOWED_ORIGINS", ""), cfg.FrontendURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite, postgres or memory, got %q", c.DB.Driver)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	switch c.QuestionMode {
	case "local":
	case "adaptive":
		if c.Adaptive.URL == "" {
			return fmt.Errorf("ADAPTIVE_URL is required in adaptive mode")
		}
	default:
		return fmt.Errorf("QUESTION_MODE must be local or adaptive, got %q", c.QuestionMode)
	}
	if c.Adaptive.Timeout <= 0 {
		return fmt.Errorf("ADAPTIVE_TIMEOUT must be > 0")
	}
	if c.Catalog.CacheTTL <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL must be > 0")
	}
	return nil
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DB.Driver == "postgres" {
		return c.DB.URL
	}
	return c.DB.Path
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func parseOrigins(raw, frontend string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) > 0 {
		return origins
	}
	if frontend != "" {
		return []string{frontend}
	}
	return []string{"*"}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("750ms") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

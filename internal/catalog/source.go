package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/store"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// CacheKey is the Redis key holding the serialized catalog.
const CacheKey = "selve:catalog:v1"

// Source loads the full catalog.
type Source interface {
	Load(ctx context.Context) (*domain.Catalog, error)
}

// StoreSource reads the catalog from the repository.
type StoreSource struct {
	repo store.Repository
}

// NewStoreSource creates a Source over repo.
func NewStoreSource(repo store.Repository) *StoreSource {
	return &StoreSource{repo: repo}
}

// Seed validates bank and upserts it into repo.
func Seed(ctx context.Context, repo store.Repository, bank *domain.Catalog) error {
	if err := Validate(bank); err != nil {
		return err
	}
	if err := repo.SaveCatalog(ctx, bank); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

// Load fetches questions, sections and checkpoints concurrently.
func (s *StoreSource) Load(ctx context.Context) (*domain.Catalog, error) {
	var c domain.Catalog
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qs, err := s.repo.ListQuestions(gctx)
		if err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
		c.Questions = qs
		return nil
	})
	g.Go(func() error {
		secs, err := s.repo.ListSections(gctx)
		if err != nil {
			return fmt.Errorf("load sections: %w", err)
		}
		c.Sections = secs
		return nil
	})
	g.Go(func() error {
		cps, err := s.repo.ListCheckpoints(gctx)
		if err != nil {
			return fmt.Errorf("load checkpoints: %w", err)
		}
		c.Checkpoints = cps
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Cache is the byte-level cache used by Cached.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisCache implements Cache on Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache parses a redis:// URL and returns a cache.
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Get returns the cached bytes or nil on a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

// Set stores value with ttl.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes key.
func (r *RedisCache) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Cached wraps a Source with a cache. Cache failures are logged and bypassed.
type Cached struct {
	src    Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached returns a Source that consults cache before src.
func NewCached(src Source, cache Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{src: src, cache: cache, ttl: ttl, logger: logger}
}

// Load returns the cached catalog or loads and caches it.
func (c *Cached) Load(ctx context.Context) (*domain.Catalog, error) {
	raw, err := c.cache.Get(ctx, CacheKey)
	if err != nil {
		c.logger.Warn("Catalog cache read failed, using store", "error", err)
	}
	if raw != nil {
		var cat domain.Catalog
		if err := json.Unmarshal(raw, &cat); err == nil {
			return &cat, nil
		}
		c.logger.Warn("Discarding undecodable cached catalog", "key", CacheKey)
	}

	cat, err := c.src.Load(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(cat)
	if err != nil {
		c.logger.Warn("Failed to encode catalog for cache", "error", err)
		return cat, nil
	}
	if err := c.cache.Set(ctx, CacheKey, encoded, c.ttl); err != nil {
		c.logger.Warn("Catalog cache write failed", "error", err)
	}
	return cat, nil
}

// Invalidate drops the cached catalog.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.cache.Del(ctx, CacheKey)
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/ports/repository"
	"notes-ai-jobs/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const resultCacheName = "results"

var _ repository.ResultCache = (*ResultCache)(nil)

// ResultCache keeps computed views as JSON strings with a per-write TTL.
type ResultCache struct {
	client RedisClient
	log    *zerolog.Logger
}

func NewResultCache(client RedisClient, logger *zerolog.Logger) *ResultCache {
	l := logger.With().Str("component", "result_cache").Logger()
	return &ResultCache{client: client, log: &l}
}

func (c *ResultCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	data, err := c.client.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncCacheRequest(resultCacheName, metrics.CacheMiss)
		return nil, false, nil
	}
	if err != nil {
		metrics.IncCacheRequest(resultCacheName, metrics.CacheError)
		return nil, false, err
	}
	if !json.Valid([]byte(data)) {
		// a corrupt entry is recomputed, not served
		c.log.Warn().Str("key", key).Msg("discarding invalid cached JSON")
		metrics.IncCacheRequest(resultCacheName, metrics.CacheCorrupt)
		return nil, false, nil
	}
	metrics.IncCacheRequest(resultCacheName, metrics.CacheHit)
	return json.RawMessage(data), true, nil
}

// Set overwrites key; last write wins.
func (c *ResultCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if !json.Valid(value) {
		return domain.ErrInvalidArgument
	}
	if err := c.client.Set(ctx, key, string(value), ttl); err != nil {
		return err
	}
	metrics.ObserveCacheWrite(resultCacheName, len(value))
	return nil
}

package repository

import (
	"context"
	"time"
)

// InflightIndex maps a cache key to the job currently computing it.
type InflightIndex interface {
	Claim(ctx context.Context, cacheKey, jobID string, ttl time.Duration) (bool, error)
	Current(ctx context.Context, cacheKey string) (string, bool, error)
	Release(ctx context.Context, cacheKey, jobID string) error
}

package redis

import (
	"context"
	"errors"
	"time"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/ports/repository"
)

var _ repository.InflightIndex = (*InflightIndex)(nil)

// InflightIndex records which job is computing a cache key so identical
// requests can share it. Markers expire on their own if a worker never
// releases them.
type InflightIndex struct {
	client RedisClient
}

func NewInflightIndex(client RedisClient) *InflightIndex {
	return &InflightIndex{client: client}
}

func inflightKey(cacheKey string) string { return "inflight:" + cacheKey }

func (i *InflightIndex) Claim(ctx context.Context, cacheKey, jobID string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, inflightKey(cacheKey), jobID, ttl)
}

func (i *InflightIndex) Current(ctx context.Context, cacheKey string) (string, bool, error) {
	id, err := i.client.Get(ctx, inflightKey(cacheKey))
	if errors.Is(err, domain.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Release drops the marker only if jobID still owns it.
func (i *InflightIndex) Release(ctx context.Context, cacheKey, jobID string) error {
	_, err := i.client.DelIfEquals(ctx, inflightKey(cacheKey), jobID)
	return err
}

package repository

import (
	"context"
	"encoding/json"
	"time"
)

// ResultCache stores computed job results by request fingerprint.
type ResultCache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
}

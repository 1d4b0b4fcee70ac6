package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/ports/repository"
	"notes-ai-jobs/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// BudgetWindow is the lifetime of a daily counter, started by its first increment.
const BudgetWindow = 24 * time.Hour

var _ repository.BudgetLimiter = (*BudgetLimiter)(nil)

type BudgetLimiter struct {
	client RedisClient
	window time.Duration
	log    *zerolog.Logger
}

func NewBudgetLimiter(client RedisClient, logger *zerolog.Logger) *BudgetLimiter {
	l := logger.With().Str("component", "budget_limiter").Logger()
	return &BudgetLimiter{client: client, window: BudgetWindow, log: &l}
}

// Consume counts one unit against key. The counter is incremented even when the
// result is a rejection, so callers invoke it only on the path that computes.
func (b *BudgetLimiter) Consume(ctx context.Context, key string, dailyLimit int) (repository.BudgetDecision, error) {
	category := categoryOf(key)
	count, err := b.client.IncrWithExpiry(ctx, key, b.window)
	if err != nil {
		metrics.IncBudgetDecision(category, "unavailable")
		b.log.Error().Err(err).Str("key", key).Msg("budget store unreachable")
		return repository.BudgetDecision{}, fmt.Errorf("%w: %v", domain.ErrBudgetUnavailable, err)
	}

	remaining := dailyLimit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := repository.BudgetDecision{Allowed: count <= int64(dailyLimit), Remaining: remaining}
	if d.Allowed {
		metrics.IncBudgetDecision(category, "allowed")
	} else {
		metrics.IncBudgetDecision(category, "rejected")
	}
	return d, nil
}

// categoryOf extracts "heavy" from "budget:heavy:42".
func categoryOf(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) >= 2 {
		return parts[1]
	}
	return "unknown"
}

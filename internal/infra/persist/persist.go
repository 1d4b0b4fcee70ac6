// Package persist retries job store and cache writes on transient failures.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"notes-ai-jobs/internal/domain"
)

type Policy struct {
	Retries uint64
	Base    time.Duration
	Max     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Retries: 3, Base: 100 * time.Millisecond, Max: 2 * time.Second}
}

// permanent reports errors that another try cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadyExists) ||
		errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Do runs fn under p. Permanent errors are returned as is; transient ones that
// outlast the retries come back wrapped in domain.ErrPersistence.
func Do(ctx context.Context, p Policy, log *zerolog.Logger, op string, fn func(ctx context.Context) error) error {
	if p.Base <= 0 {
		p.Base = DefaultPolicy().Base
	}
	b := retry.NewExponential(p.Base)
	if p.Max > 0 {
		b = retry.WithCappedDuration(p.Max, b)
	}
	b = retry.WithMaxRetries(p.Retries, b)

	try := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		try++
		err := fn(ctx)
		if err == nil || permanent(err) {
			return err
		}
		log.Warn().Err(err).Str("op", op).Int("try", try).Msg("persistence retry")
		return retry.RetryableError(err)
	})
	if err == nil || permanent(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

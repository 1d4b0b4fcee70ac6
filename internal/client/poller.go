package client

import (
	"context"
	"encoding/json"
	"time"

	"notes-ai-jobs/internal/domain/model"
)

const (
	DefaultInitialDelay = 800 * time.Millisecond
	DefaultInterval     = time.Second
	DefaultMaxAttempts  = 30
)

// StatusFetcher is the single poll the Poller repeats.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (*model.JobState, error)
}

type Poller struct {
	src          StatusFetcher
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

func NewPoller(src StatusFetcher) *Poller {
	return &Poller{
		src:          src,
		InitialDelay: DefaultInitialDelay,
		Interval:     DefaultInterval,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

// Wait polls until the job is terminal. The first poll happens after
// InitialDelay, later ones every Interval. After MaxAttempts polls it gives
// up with ErrPollTimeout and does not contact the server again. A failed job
// is returned as *JobFailedError; a transport error ends polling at once.
func (p *Poller) Wait(ctx context.Context, jobID string) (json.RawMessage, error) {
	timer := time.NewTimer(p.InitialDelay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		if attempt > p.MaxAttempts {
			return nil, ErrPollTimeout
		}

		st, err := p.src.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch st.Status {
		case model.JobStatusCompleted:
			if len(st.Result) > 0 {
				return st.Result, nil
			}
		case model.JobStatusFailed:
			msg := st.Error
			if msg == "" {
				msg = defaultFailText
			}
			return nil, &JobFailedError{Message: msg}
		}
		timer.Reset(p.Interval)
	}
}

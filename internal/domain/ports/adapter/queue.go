package adapter

import (
	"context"
	"encoding/json"

	"notes-ai-jobs/internal/domain/model"
)

// JobQueue is the FIFO work channel between the facade and the workers.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType model.JobType, payload model.JobPayload) (string, error)
	// Lookup returns the live state the queue still remembers for id, or
	// domain.ErrNotFound once the entry has been pruned.
	Lookup(ctx context.Context, id string) (*model.JobState, error)
}

// Delivery is one attempt of one job handed to a consumer.
type Delivery struct {
	JobID       string
	Type        model.JobType
	Payload     model.JobPayload
	Attempt     int // 1-based
	MaxAttempts int
}

// Final reports whether a failure of this attempt exhausts the retry ceiling.
func (d Delivery) Final() bool {
	return d.Attempt >= d.MaxAttempts
}

// DeliveryHandler consumes deliveries. A returned error means the attempt failed.
type DeliveryHandler interface {
	Process(ctx context.Context, d Delivery) (json.RawMessage, error)
}

type DeliveryHandlerFunc func(ctx context.Context, d Delivery) (json.RawMessage, error)

func (f DeliveryHandlerFunc) Process(ctx context.Context, d Delivery) (json.RawMessage, error) {
	return f(ctx, d)
}

// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/ports/adapter"
)

// Source is a queue that hands out leased deliveries and takes back outcomes.
type Source interface {
	Dequeue(ctx context.Context) (adapter.Delivery, error)
	Ack(ctx context.Context, id string, result json.RawMessage) error
	Nack(ctx context.Context, id string, cause error) error
}

// Pool runs a fixed number of consumers against one Source.
type Pool struct {
	wg  sync.WaitGroup
	n   int
	log *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{n: workers, log: &l}
}

// Start launches the consumers. They exit when ctx is done or src is closed.
func (p *Pool) Start(ctx context.Context, src Source, h adapter.DeliveryHandler) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.consume(ctx, id, src, h)
		}(i)
	}
	p.log.Info().Int("workers", p.n).Msg("worker pool started")
}

func (p *Pool) consume(ctx context.Context, id int, src Source, h adapter.DeliveryHandler) {
	for {
		d, err := src.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Int("worker", id).Msg("dequeue failed")
			continue
		}

		result, err := h.Process(ctx, d)
		if err != nil {
			if nerr := src.Nack(ctx, d.JobID, err); nerr != nil {
				p.log.Error().Err(nerr).Str("job_id", d.JobID).Msg("nack failed")
			}
			continue
		}
		if aerr := src.Ack(ctx, d.JobID, result); aerr != nil {
			p.log.Error().Err(aerr).Str("job_id", d.JobID).Msg("ack failed")
		}
	}
}

// Wait blocks until every consumer has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Package memqueue is an in-process job queue with the same delivery contract
// as the Redis-backed one. State is lost on restart; the job store covers that.
package memqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/infra/backoff"
	"notes-ai-jobs/internal/infra/metrics"
	"notes-ai-jobs/internal/infra/queue"
)

var _ adapter.JobQueue = (*Queue)(nil)

type Options struct {
	MaxAttempts    int
	Backoff        backoff.Exponential
	RetainTerminal int
}

type entry struct {
	id      string
	jobType model.JobType
	payload model.JobPayload
	status  model.JobStatus
	failed  int // attempts counted against the ceiling
	result  json.RawMessage
	lastErr string
	leased  bool
}

type Queue struct {
	opts Options
	log  *zerolog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	ready    []string
	terminal []string
	wake     chan struct{}
	closed   bool
	timers   map[string]*time.Timer
}

func New(opts Options, logger *zerolog.Logger) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetainTerminal <= 0 {
		opts.RetainTerminal = 50
	}
	l := logger.With().Str("component", "memqueue").Logger()
	return &Queue{
		opts:    opts,
		log:     &l,
		entries: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
		timers:  make(map[string]*time.Timer),
	}
}

func (q *Queue) Enqueue(_ context.Context, jobType model.JobType, payload model.JobPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", domain.ErrQueueClosed
	}
	id := queue.NewJobID()
	q.entries[id] = &entry{id: id, jobType: jobType, payload: payload, status: model.JobStatusQueued}
	q.ready = append(q.ready, id)
	q.signal()
	q.reportDepth()
	return id, nil
}

func (q *Queue) Lookup(_ context.Context, id string) (*model.JobState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	st := &model.JobState{Status: e.status}
	switch e.status {
	case model.JobStatusCompleted:
		st.Result = e.result
	case model.JobStatusFailed:
		st.Error = e.lastErr
	}
	return st, nil
}

// Dequeue blocks until a job is ready, ctx is done or the queue is closed.
// The returned delivery is leased to the caller until Ack or Nack.
func (q *Queue) Dequeue(ctx context.Context) (adapter.Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return adapter.Delivery{}, domain.ErrQueueClosed
		}
		if len(q.ready) > 0 {
			id := q.ready[0]
			q.ready = q.ready[1:]
			e := q.entries[id]
			e.status = model.JobStatusActive
			e.leased = true
			d := adapter.Delivery{
				JobID:       e.id,
				Type:        e.jobType,
				Payload:     e.payload,
				Attempt:     e.failed + 1,
				MaxAttempts: q.opts.MaxAttempts,
			}
			if len(q.ready) > 0 {
				q.signal()
			}
			q.reportDepth()
			q.mu.Unlock()
			return d, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return adapter.Delivery{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Ack records a successful attempt.
func (q *Queue) Ack(_ context.Context, id string, result json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.leasedEntry(id)
	if err != nil {
		return err
	}
	e.leased = false
	e.status = model.JobStatusCompleted
	e.result = result
	q.retire(id)
	return nil
}

// Nack records a failed attempt. Infrastructure failures are redelivered
// without consuming an attempt; others count until the ceiling is reached.
func (q *Queue) Nack(_ context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, err := q.leasedEntry(id)
	if err != nil {
		return err
	}
	e.leased = false
	if cause != nil {
		e.lastErr = cause.Error()
	}

	if !errors.Is(cause, domain.ErrPersistence) {
		e.failed++
		if e.failed >= q.opts.MaxAttempts || errors.Is(cause, domain.ErrSkipRetry) {
			e.status = model.JobStatusFailed
			q.retire(id)
			return nil
		}
	}

	// stays active while it waits for redelivery
	delay := q.opts.Backoff.Delay(max(e.failed, 1))
	q.timers[id] = time.AfterFunc(delay, func() { q.redeliver(id) })
	return nil
}

func (q *Queue) redeliver(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.timers, id)
	if q.closed {
		return
	}
	if _, ok := q.entries[id]; !ok {
		return
	}
	q.ready = append(q.ready, id)
	q.signal()
	q.reportDepth()
}

// Close stops deliveries and pending redelivery timers.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	close(q.wake)
}

func (q *Queue) leasedEntry(id string) (*entry, error) {
	e, ok := q.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !e.leased {
		return nil, domain.ErrInvalidTransition
	}
	return e, nil
}

// retire records a terminal entry and prunes the oldest beyond retention.
func (q *Queue) retire(id string) {
	q.terminal = append(q.terminal, id)
	for len(q.terminal) > q.opts.RetainTerminal {
		oldest := q.terminal[0]
		q.terminal = q.terminal[1:]
		delete(q.entries, oldest)
	}
	q.reportDepth()
}

// signal must be called with mu held.
func (q *Queue) signal() {
	if q.closed {
		return
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) reportDepth() {
	metrics.SetQueueDepth("queued", len(q.ready))
	metrics.SetQueueDepth("active", len(q.entries)-len(q.ready)-len(q.terminal))
	metrics.SetQueueDepth("retained", len(q.terminal))
}

//go:build !integration

package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// -----------------------------
// Result cache
// -----------------------------

type memCache struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
	err  error
}

func newMemCache() *memCache { return &memCache{data: make(map[string]json.RawMessage)} }

func (c *memCache) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value json.RawMessage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (c *memCache) peek(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// -----------------------------
// Budget limiter
// -----------------------------

type memBudget struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newMemBudget() *memBudget { return &memBudget{counts: make(map[string]int)} }

func (b *memBudget) Consume(_ context.Context, key string, limit int) (repository.BudgetDecision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return repository.BudgetDecision{}, fmt.Errorf("%w: %v", domain.ErrBudgetUnavailable, b.err)
	}
	b.counts[key]++
	n := b.counts[key]
	return repository.BudgetDecision{Allowed: n <= limit, Remaining: max(limit-n, 0)}, nil
}

func (b *memBudget) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[key]
}

// -----------------------------
// Job store
// -----------------------------

type memJobs struct {
	mu        sync.Mutex
	rows      map[string]*model.Job
	createErr error
}

func newMemJobs() *memJobs { return &memJobs{rows: make(map[string]*model.Job)} }

func (r *memJobs) CreateJob(_ context.Context, _ repository.Tx, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.rows[j.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *j
	r.rows[j.ID] = &cp
	return nil
}

func (r *memJobs) UpdateJob(_ context.Context, id string, upd model.JobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status == upd.Status && j.Status.IsTerminal() {
		return nil
	}
	if !j.Status.CanTransitionTo(upd.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, upd.Status)
	}
	j.Status = upd.Status
	j.Result = upd.Result
	j.Error = upd.Error
	j.Attempts = max(j.Attempts, upd.Attempt)
	j.UpdatedAt = time.Now()
	return nil
}

func (r *memJobs) GetJob(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobs) ListUnfinished(_ context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.rows {
		if !j.Status.IsTerminal() && j.UpdatedAt.Before(olderThan) && len(out) < limit {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -----------------------------
// In-flight index
// -----------------------------

type memInflight struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemInflight() *memInflight { return &memInflight{keys: make(map[string]string)} }

func (m *memInflight) Claim(_ context.Context, key, id string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = id
	return true, nil
}

func (m *memInflight) Current(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	return id, ok, nil
}

func (m *memInflight) Release(_ context.Context, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] == id {
		delete(m.keys, key)
	}
	return nil
}

// -----------------------------
// Queue wrapper counting enqueues
// -----------------------------

type countingQueue struct {
	adapter.JobQueue
	mu sync.Mutex
	n  int
}

func (q *countingQueue) Enqueue(ctx context.Context, t model.JobType, p model.JobPayload) (string, error) {
	q.mu.Lock()
	q.n++
	q.mu.Unlock()
	return q.JobQueue.Enqueue(ctx, t, p)
}

func (q *countingQueue) enqueued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

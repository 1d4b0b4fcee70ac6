//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain/model"
)

// -----------------------------
// Notes repository
// -----------------------------

type MockNoteRepo struct {
	RecentNotesFunc func(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Note, error)

	mu    sync.Mutex
	calls []recentCall
}

type recentCall struct {
	UserID int64
	Since  time.Time
	Limit  int
}

func NewMockNoteRepo(notes ...model.Note) *MockNoteRepo {
	return &MockNoteRepo{
		RecentNotesFunc: func(context.Context, int64, time.Time, int) ([]model.Note, error) {
			return notes, nil
		},
	}
}

func (m *MockNoteRepo) RecentNotes(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Note, error) {
	m.mu.Lock()
	m.calls = append(m.calls, recentCall{UserID: userID, Since: since, Limit: limit})
	m.mu.Unlock()
	return m.RecentNotesFunc(ctx, userID, since, limit)
}

func (m *MockNoteRepo) Calls() []recentCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recentCall(nil), m.calls...)
}

// -----------------------------
// Structured generator
// -----------------------------

type MockGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (json.RawMessage, error)

	mu      sync.Mutex
	prompts []string
}

func NewMockGenerator(answer string) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(context.Context, string) (json.RawMessage, error) {
			return json.RawMessage(answer), nil
		},
	}
}

func (m *MockGenerator) GenerateStructured(ctx context.Context, prompt string) (json.RawMessage, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, prompt)
}

func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
)

func TestAIJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewAIJobRepo(testPool, NewTxManager(testPool))

	t.Run("should create and read back a queued job", func(t *testing.T) {
		cleanup(t)
		job := model.NewJob("job-1", 42, model.JobTypeDigest, "digest:42")
		if err := repo.CreateJob(ctx, nil, job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}

		got, err := repo.GetJob(ctx, nil, "job-1")
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if got.Status != model.JobStatusQueued || got.UserID != 42 || got.CacheKey != "digest:42" {
			t.Errorf("unexpected row: %+v", got)
		}
		if got.Result != nil || got.Error != "" {
			t.Errorf("queued job must not carry result or error: %+v", got)
		}
	})

	t.Run("should reject a duplicate id", func(t *testing.T) {
		cleanup(t)
		job := model.NewJob("dup", 1, model.JobTypeGraph, "graph:1")
		if err := repo.CreateJob(ctx, nil, job); err != nil {
			t.Fatal(err)
		}
		err := repo.CreateJob(ctx, nil, model.NewJob("dup", 1, model.JobTypeGraph, "graph:1"))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should walk the lifecycle and keep terminal writes idempotent", func(t *testing.T) {
		cleanup(t)
		if err := repo.CreateJob(ctx, nil, model.NewJob("life", 7, model.JobTypeDigest, "digest:7")); err != nil {
			t.Fatal(err)
		}
		for attempt := 1; attempt <= 3; attempt++ {
			if err := repo.UpdateJob(ctx, "life", model.JobUpdate{Status: model.JobStatusActive, Attempt: attempt}); err != nil {
				t.Fatalf("mark active attempt %d: %v", attempt, err)
			}
		}
		result := json.RawMessage(`{"summary":"ok","themes":[]}`)
		done := model.JobUpdate{Status: model.JobStatusCompleted, Result: result, Attempt: 3}
		if err := repo.UpdateJob(ctx, "life", done); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if err := repo.UpdateJob(ctx, "life", done); err != nil {
			t.Fatalf("repeated completion should be a no-op, got %v", err)
		}

		err := repo.UpdateJob(ctx, "life", model.JobUpdate{Status: model.JobStatusFailed, Error: "late"})
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("completed -> failed: expected ErrInvalidTransition, got %v", err)
		}
		err = repo.UpdateJob(ctx, "life", model.JobUpdate{Status: model.JobStatusQueued})
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("completed -> queued: expected ErrInvalidTransition, got %v", err)
		}

		got, err := repo.GetJob(ctx, nil, "life")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != model.JobStatusCompleted || got.Attempts != 3 {
			t.Errorf("status=%s attempts=%d, want completed/3", got.Status, got.Attempts)
		}
		var decoded map[string]any
		if err := json.Unmarshal(got.Result, &decoded); err != nil || decoded["summary"] != "ok" {
			t.Errorf("result not persisted: %s (%v)", got.Result, err)
		}
		if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
			t.Errorf("updated_at %s before created_at %s", got.UpdatedAt, got.CreatedAt)
		}
	})

	t.Run("should store the failure message", func(t *testing.T) {
		cleanup(t)
		if err := repo.CreateJob(ctx, nil, model.NewJob("bad", 9, model.JobTypeContradictions, "contradictions:9")); err != nil {
			t.Fatal(err)
		}
		if err := repo.UpdateJob(ctx, "bad", model.JobUpdate{Status: model.JobStatusFailed, Error: "LLM returned invalid JSON", Attempt: 3}); err != nil {
			t.Fatal(err)
		}
		got, err := repo.GetJob(ctx, nil, "bad")
		if err != nil {
			t.Fatal(err)
		}
		if got.State().Error != "LLM returned invalid JSON" || got.State().Result != nil {
			t.Errorf("unexpected state %+v", got.State())
		}
	})

	t.Run("should return not found for unknown ids", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.GetJob(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetJob: expected ErrNotFound, got %v", err)
		}
		err := repo.UpdateJob(ctx, "missing", model.JobUpdate{Status: model.JobStatusActive})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("UpdateJob: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should list stale unfinished jobs oldest first", func(t *testing.T) {
		cleanup(t)
		for _, id := range []string{"stale-q", "stale-a", "fresh", "done"} {
			if err := repo.CreateJob(ctx, nil, model.NewJob(id, 3, model.JobTypeDigest, "digest:3")); err != nil {
				t.Fatal(err)
			}
		}
		if err := repo.UpdateJob(ctx, "stale-a", model.JobUpdate{Status: model.JobStatusActive, Attempt: 1}); err != nil {
			t.Fatal(err)
		}
		if err := repo.UpdateJob(ctx, "done", model.JobUpdate{Status: model.JobStatusCompleted, Result: json.RawMessage(`{}`), Attempt: 1}); err != nil {
			t.Fatal(err)
		}
		_, err := testPool.Exec(ctx, `
UPDATE ai_jobs SET updated_at = now() - interval '1 hour' WHERE id = 'stale-q';
UPDATE ai_jobs SET updated_at = now() - interval '30 minutes' WHERE id IN ('stale-a', 'done');`)
		if err != nil {
			t.Fatal(err)
		}

		got, err := repo.ListUnfinished(ctx, time.Now().Add(-10*time.Minute), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != "stale-q" || got[1].ID != "stale-a" {
			ids := make([]string, 0, len(got))
			for _, j := range got {
				ids = append(ids, j.ID)
			}
			t.Fatalf("ListUnfinished = %v, want [stale-q stale-a]", ids)
		}

		one, err := repo.ListUnfinished(ctx, time.Now().Add(-10*time.Minute), 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(one) != 1 {
			t.Errorf("limit not applied: %d rows", len(one))
		}
	})
}

func TestNoteRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	cleanup(t)

	var srcID int64
	err := testPool.QueryRow(ctx,
		`INSERT INTO sources (url, title, domain) VALUES ('https://a.example/x', 'A', 'a.example') RETURNING id`).Scan(&srcID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = testPool.Exec(ctx, `
INSERT INTO notes (user_id, source_id, summary, key_insights, created_at) VALUES
  (1, $1, 'fresh', '["k1","k2"]', now()),
  (1, $1, 'old', '[]', now() - interval '10 days'),
  (2, $1, 'other user', '[]', now())`, srcID)
	if err != nil {
		t.Fatal(err)
	}

	repo := NewNoteRepo(testPool)
	week, err := repo.RecentNotes(ctx, 1, time.Now().Add(-7*24*time.Hour), 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(week) != 1 || week[0].Summary != "fresh" || len(week[0].KeyInsights) != 2 {
		t.Fatalf("weekly notes = %+v", week)
	}

	all, err := repo.RecentNotes(ctx, 1, time.Time{}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Summary != "fresh" {
		t.Errorf("expected newest-first pair, got %+v", all)
	}
}

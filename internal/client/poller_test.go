//go:build !integration

package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"notes-ai-jobs/internal/client"
	"notes-ai-jobs/internal/domain/model"
)

type scriptedStatus struct {
	calls  atomic.Int32
	states []*model.JobState
	err    error
}

func (s *scriptedStatus) Status(context.Context, string) (*model.JobState, error) {
	n := int(s.calls.Add(1))
	if s.err != nil {
		return nil, s.err
	}
	if n > len(s.states) {
		return s.states[len(s.states)-1], nil
	}
	return s.states[n-1], nil
}

func fastPoller(src client.StatusFetcher, maxAttempts int) *client.Poller {
	p := client.NewPoller(src)
	p.InitialDelay = time.Millisecond
	p.Interval = time.Millisecond
	p.MaxAttempts = maxAttempts
	return p
}

func TestPoller_Defaults(t *testing.T) {
	p := client.NewPoller(&scriptedStatus{})
	if p.InitialDelay != 800*time.Millisecond || p.Interval != time.Second || p.MaxAttempts != 30 {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

func TestPoller_Wait(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the result once completed", func(t *testing.T) {
		src := &scriptedStatus{states: []*model.JobState{
			{Status: model.JobStatusQueued},
			{Status: model.JobStatusActive},
			{Status: model.JobStatusCompleted, Result: json.RawMessage(`{"ok":true}`)},
		}}
		out, err := fastPoller(src, 30).Wait(ctx, "j")
		if err != nil || string(out) != `{"ok":true}` {
			t.Fatalf("got %s, %v", out, err)
		}
		if src.calls.Load() != 3 {
			t.Errorf("expected 3 polls, got %d", src.calls.Load())
		}
	})

	t.Run("failed job carries the server message", func(t *testing.T) {
		src := &scriptedStatus{states: []*model.JobState{{Status: model.JobStatusFailed, Error: "LLM returned invalid JSON"}}}
		_, err := fastPoller(src, 30).Wait(ctx, "j")
		var jf *client.JobFailedError
		if !errors.As(err, &jf) || jf.Message != "LLM returned invalid JSON" {
			t.Fatalf("expected JobFailedError, got %v", err)
		}
	})

	t.Run("failed job without a message", func(t *testing.T) {
		src := &scriptedStatus{states: []*model.JobState{{Status: model.JobStatusFailed}}}
		_, err := fastPoller(src, 30).Wait(ctx, "j")
		if err == nil || err.Error() != "Job failed" {
			t.Fatalf("expected the default message, got %v", err)
		}
	})

	t.Run("gives up after the attempt bound without another poll", func(t *testing.T) {
		src := &scriptedStatus{states: []*model.JobState{{Status: model.JobStatusActive}}}
		_, err := fastPoller(src, 4).Wait(ctx, "j")
		if !errors.Is(err, client.ErrPollTimeout) {
			t.Fatalf("expected ErrPollTimeout, got %v", err)
		}
		if src.calls.Load() != 4 {
			t.Errorf("expected exactly 4 polls, got %d", src.calls.Load())
		}
		if err.Error() != "Job timed out." {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("transport errors stop polling", func(t *testing.T) {
		boom := errors.New("connection reset")
		src := &scriptedStatus{err: boom}
		_, err := fastPoller(src, 30).Wait(ctx, "j")
		if !errors.Is(err, boom) || src.calls.Load() != 1 {
			t.Fatalf("expected one poll and the transport error, got %v after %d", err, src.calls.Load())
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		src := &scriptedStatus{states: []*model.JobState{{Status: model.JobStatusActive}}}
		p := client.NewPoller(src)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := p.Wait(cctx, "j"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

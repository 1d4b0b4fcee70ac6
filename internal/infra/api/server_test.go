//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/application"
	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/infra/api"
)

const testSecret = "0123456789abcdef0123"

type fakeJobs struct {
	RequestJobFunc func(ctx context.Context, userID int64, t model.JobType, in string) (application.JobOutcome, error)
	GetStatusFunc  func(ctx context.Context, id string) (*model.JobState, error)

	lastUser  int64
	lastType  model.JobType
	lastInput string
}

func (f *fakeJobs) RequestJob(ctx context.Context, userID int64, t model.JobType, in string) (application.JobOutcome, error) {
	f.lastUser, f.lastType, f.lastInput = userID, t, in
	return f.RequestJobFunc(ctx, userID, t, in)
}

func (f *fakeJobs) GetStatus(ctx context.Context, id string) (*model.JobState, error) {
	return f.GetStatusFunc(ctx, id)
}

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func newRouter(jobs *fakeJobs, perMinute int) (http.Handler, *api.Authenticator) {
	auth := api.NewAuthenticator(testSecret)
	srv := api.NewServer(jobs, auth, api.Options{
		HeavyPerMinute: perMinute,
		Health: map[string]api.HealthCheck{
			"redis": func(context.Context) error { return nil },
		},
	}, newLogger())
	return srv.Router(), auth
}

func do(t *testing.T, h http.Handler, auth *api.Authenticator, method, path, body string, uid int64) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Buffer
	if body != "" {
		rdr = bytes.NewBufferString(body)
	} else {
		rdr = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rdr)
	if uid > 0 {
		tok, err := auth.Mint(uid, time.Hour)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestJob(t *testing.T) {
	t.Run("202 with a job handle", func(t *testing.T) {
		jobs := &fakeJobs{RequestJobFunc: func(context.Context, int64, model.JobType, string) (application.JobOutcome, error) {
			return application.JobOutcome{JobID: "01HX"}, nil
		}}
		h, auth := newRouter(jobs, 0)

		rec := do(t, h, auth, http.MethodPost, "/api/graph", `{"input":"go"}`, 42)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["status"] != "queued" || body["job_id"] != "01HX" {
			t.Fatalf("unexpected body %v", body)
		}
		if jobs.lastUser != 42 || jobs.lastType != model.JobTypeGraph || jobs.lastInput != "go" {
			t.Errorf("facade called with %d %s %q", jobs.lastUser, jobs.lastType, jobs.lastInput)
		}
	})

	t.Run("200 with the cached result verbatim", func(t *testing.T) {
		jobs := &fakeJobs{RequestJobFunc: func(context.Context, int64, model.JobType, string) (application.JobOutcome, error) {
			return application.JobOutcome{Result: json.RawMessage(`{"themes":[],"summary":"x"}`)}, nil
		}}
		h, auth := newRouter(jobs, 0)

		rec := do(t, h, auth, http.MethodGet, "/api/digest", "", 1)
		if rec.Code != http.StatusOK || rec.Body.String() != `{"themes":[],"summary":"x"}` {
			t.Fatalf("got %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{domain.ErrRateLimitExceeded, http.StatusTooManyRequests},
			{domain.ErrBudgetUnavailable, http.StatusServiceUnavailable},
			{errors.New("queue down"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			jobs := &fakeJobs{RequestJobFunc: func(context.Context, int64, model.JobType, string) (application.JobOutcome, error) {
				return application.JobOutcome{}, tc.err
			}}
			h, auth := newRouter(jobs, 0)
			rec := do(t, h, auth, http.MethodPost, "/api/recommendations", "", 1)
			if rec.Code != tc.code {
				t.Errorf("%v: want %d, got %d", tc.err, tc.code, rec.Code)
			}
		}
	})

	t.Run("unknown view is 404", func(t *testing.T) {
		jobs := &fakeJobs{}
		h, auth := newRouter(jobs, 0)
		if rec := do(t, h, auth, http.MethodPost, "/api/horoscope", "", 1); rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		jobs := &fakeJobs{}
		h, auth := newRouter(jobs, 0)
		if rec := do(t, h, auth, http.MethodPost, "/api/digest", `{"input":`, 1); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("missing or bad token is 401", func(t *testing.T) {
		jobs := &fakeJobs{}
		h, auth := newRouter(jobs, 0)
		if rec := do(t, h, auth, http.MethodPost, "/api/digest", "", 0); rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}

		other := api.NewAuthenticator("another-secret-value!")
		tok, _ := other.Mint(1, time.Hour)
		req := httptest.NewRequest(http.MethodPost, "/api/digest", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401 for a foreign signature, got %d", rec.Code)
		}
	})

	t.Run("per-user burst limit", func(t *testing.T) {
		jobs := &fakeJobs{RequestJobFunc: func(context.Context, int64, model.JobType, string) (application.JobOutcome, error) {
			return application.JobOutcome{JobID: "j"}, nil
		}}
		h, auth := newRouter(jobs, 5)

		for i := 0; i < 5; i++ {
			if rec := do(t, h, auth, http.MethodPost, "/api/digest", "", 9); rec.Code != http.StatusAccepted {
				t.Fatalf("request %d: want 202, got %d", i+1, rec.Code)
			}
		}
		if rec := do(t, h, auth, http.MethodPost, "/api/digest", "", 9); rec.Code != http.StatusTooManyRequests {
			t.Fatalf("6th request: want 429, got %d", rec.Code)
		}
		if rec := do(t, h, auth, http.MethodPost, "/api/digest", "", 10); rec.Code != http.StatusAccepted {
			t.Fatalf("other user: want 202, got %d", rec.Code)
		}
	})
}

func TestJobStatus(t *testing.T) {
	t.Run("completed job returns the result", func(t *testing.T) {
		jobs := &fakeJobs{GetStatusFunc: func(_ context.Context, id string) (*model.JobState, error) {
			return &model.JobState{Status: model.JobStatusCompleted, Result: json.RawMessage(`{"nodes":[]}`)}, nil
		}}
		h, auth := newRouter(jobs, 0)

		rec := do(t, h, auth, http.MethodGet, "/api/jobs/01HX", "", 1)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var st model.JobState
		if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.Status != model.JobStatusCompleted || string(st.Result) != `{"nodes":[]}` {
			t.Errorf("unexpected state %+v", st)
		}
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		jobs := &fakeJobs{GetStatusFunc: func(context.Context, string) (*model.JobState, error) {
			return nil, domain.ErrNotFound
		}}
		h, auth := newRouter(jobs, 0)

		rec := do(t, h, auth, http.MethodGet, "/api/jobs/nope", "", 1)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("unreachable status sources are 503, not 404", func(t *testing.T) {
		jobs := &fakeJobs{GetStatusFunc: func(context.Context, string) (*model.JobState, error) {
			return nil, errors.New("redis timeout")
		}}
		h, auth := newRouter(jobs, 0)

		rec := do(t, h, auth, http.MethodGet, "/api/jobs/01HX", "", 1)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("want 503, got %d", rec.Code)
		}
	})

	t.Run("status polls are not burst limited", func(t *testing.T) {
		jobs := &fakeJobs{GetStatusFunc: func(context.Context, string) (*model.JobState, error) {
			return &model.JobState{Status: model.JobStatusActive}, nil
		}}
		h, auth := newRouter(jobs, 1)
		for i := 0; i < 5; i++ {
			if rec := do(t, h, auth, http.MethodGet, "/api/jobs/x", "", 1); rec.Code != http.StatusOK {
				t.Fatalf("poll %d: want 200, got %d", i+1, rec.Code)
			}
		}
	})
}

func TestHealth(t *testing.T) {
	h, auth := newRouter(&fakeJobs{}, 0)
	rec := do(t, h, auth, http.MethodGet, "/health", "", 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Errorf("expected a trace id header")
	}
}

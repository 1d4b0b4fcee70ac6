package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/application"
	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/infra/logging"
)

// JobService is what the HTTP layer needs from the job facade.
type JobService interface {
	RequestJob(ctx context.Context, userID int64, jobType model.JobType, disambiguator string) (application.JobOutcome, error)
	GetStatus(ctx context.Context, id string) (*model.JobState, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	HeavyPerMinute int
	RequestTimeout time.Duration
	Health         map[string]HealthCheck
}

type Server struct {
	jobs JobService
	auth *Authenticator
	opts Options
	log  *zerolog.Logger
}

func NewServer(jobs JobService, auth *Authenticator, opts Options, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{jobs: jobs, auth: auth, opts: opts, log: &l}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log), TraceID(s.log), RequestLog(s.log))
	if s.opts.RequestTimeout > 0 {
		r.Use(Timeout(s.opts.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/jobs/{id}", s.handleJobStatus)

		r.Group(func(r chi.Router) {
			r.Use(UserRateLimit(s.opts.HeavyPerMinute))
			r.Get("/{type}", s.handleRequestJob)
			r.Post("/{type}", s.handleRequestJob)
		})
	})
	return r
}

type requestBody struct {
	Input string `json:"input"`
}

type queuedResponse struct {
	Status model.JobStatus `json:"status"`
	JobID  string          `json:"job_id"`
}

const maxBodyBytes = 16 << 10

func (s *Server) handleRequestJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)

	jobType, err := model.ParseJobType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown view")
		return
	}
	uid, ok := logging.UserIDFrom(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing auth token")
		return
	}

	input := r.URL.Query().Get("input")
	if r.Method == http.MethodPost && r.Body != nil {
		var body requestBody
		err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		default:
			input = body.Input
		}
	}

	out, err := s.jobs.RequestJob(ctx, uid, jobType, input)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "Daily heavy AI limit reached")
		return
	case errors.Is(err, domain.ErrBudgetUnavailable):
		writeError(w, http.StatusServiceUnavailable, "AI budget is temporarily unavailable")
		return
	default:
		log.Error().Err(err).Str("job_type", string(jobType)).Msg("request job failed")
		writeError(w, http.StatusInternalServerError, "Could not start the job")
		return
	}

	if out.Cached() {
		writeRawJSON(w, http.StatusOK, out.Result)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{Status: model.JobStatusQueued, JobID: out.JobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.jobs.GetStatus(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("job_id", id).Msg("job status lookup failed")
		writeError(w, http.StatusServiceUnavailable, "Job status is temporarily unavailable")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for name, check := range s.opts.Health {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, code int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(raw)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

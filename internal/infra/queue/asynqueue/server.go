package asynqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
)

// Server consumes tasks and hands them to a DeliveryHandler.
type Server struct {
	srv     *asynq.Server
	mux     *asynq.ServeMux
	handler adapter.DeliveryHandler
	opts    Options
	log     *zerolog.Logger
}

func NewServer(redisOpt asynq.RedisConnOpt, opts Options, h adapter.DeliveryHandler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "asynq_server").Logger()
	s := &Server{handler: h, opts: opts, log: &l}
	s.srv = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    opts.Concurrency,
		Queues:         map[string]int{opts.Queue: 1},
		RetryDelayFunc: s.retryDelay,
		IsFailure:      isFailure,
		Logger:         asynqLogger{log: &l},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			l.Debug().Err(err).Str("job_id", id).Str("task_type", task.Type()).Msg("task attempt returned error")
		}),
	})
	s.mux = asynq.NewServeMux()
	for _, t := range model.AllJobTypes() {
		s.mux.HandleFunc(taskTypePrefix+string(t), s.handle)
	}
	return s
}

// Start begins processing in the background.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

func (s *Server) handle(ctx context.Context, task *asynq.Task) error {
	d, err := deliveryOf(ctx, task, s.opts.MaxAttempts)
	if err != nil {
		// a malformed payload never gets better
		return archiveNow{err}
	}
	result, err := s.handler.Process(ctx, d)
	if err != nil {
		if errors.Is(err, domain.ErrSkipRetry) {
			return archiveNow{err}
		}
		return err
	}
	if w := task.ResultWriter(); w != nil && len(result) > 0 {
		if _, werr := w.Write(result); werr != nil {
			s.log.Warn().Err(werr).Str("job_id", d.JobID).Msg("failed to attach result to task")
		}
	}
	return nil
}

func deliveryOf(ctx context.Context, task *asynq.Task, defaultAttempts int) (adapter.Delivery, error) {
	var payload model.JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return adapter.Delivery{}, fmt.Errorf("decode payload: %w", err)
	}
	jobType, err := model.ParseJobType(strings.TrimPrefix(task.Type(), taskTypePrefix))
	if err != nil {
		return adapter.Delivery{}, err
	}
	d := adapter.Delivery{Type: jobType, Payload: payload, Attempt: 1, MaxAttempts: max(defaultAttempts, 1)}
	if id, ok := asynq.GetTaskID(ctx); ok {
		d.JobID = id
	}
	if n, ok := asynq.GetRetryCount(ctx); ok {
		d.Attempt = n + 1
	}
	if n, ok := asynq.GetMaxRetry(ctx); ok {
		d.MaxAttempts = n + 1
	}
	return d, nil
}

// archiveNow makes asynq archive the task without another retry while keeping
// the original message as the task's last error.
type archiveNow struct{ error }

func (e archiveNow) Unwrap() error { return e.error }

func (e archiveNow) Is(target error) bool { return target == asynq.SkipRetry }

// retryDelay receives the number of failures so far, starting at 0.
func (s *Server) retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return s.opts.Backoff.Delay(n + 1)
}

// isFailure keeps infrastructure errors from using up attempts.
func isFailure(err error) bool {
	return !errors.Is(err, domain.ErrPersistence)
}

// asynqLogger routes asynq's internal logging into zerolog.
type asynqLogger struct{ log *zerolog.Logger }

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }

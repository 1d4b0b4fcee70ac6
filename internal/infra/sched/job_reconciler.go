package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/domain/ports/repository"
	"notes-ai-jobs/internal/infra/metrics"
)

const reconcileBatch = 200

// JobReconciler periodically scans job rows that have stayed queued or active
// for too long and compares them with the queue. A terminal outcome the queue
// recorded but the store missed is copied into the store. Rows the queue no
// longer knows are reported and left untouched.
type JobReconciler struct {
	jobs       repository.AIJobRepository
	queue      adapter.JobQueue
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how long a row must sit unfinished before it is checked
	log        *zerolog.Logger
}

func NewJobReconciler(jobs repository.AIJobRepository, queue adapter.JobQueue, interval, staleAfter time.Duration, logger *zerolog.Logger) *JobReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "job_reconciler").Logger()
	return &JobReconciler{jobs: jobs, queue: queue, interval: interval, staleAfter: staleAfter, log: &l}
}

func (w *JobReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one scan and returns how many rows were synced from the queue.
func (w *JobReconciler) Tick(ctx context.Context) int {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.jobs.ListUnfinished(ctx, cutoff, reconcileBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("list unfinished jobs failed")
		return 0
	}

	synced := 0
	for _, j := range stale {
		log := w.log.With().Str("job_id", j.ID).Str("job_type", string(j.Type)).Str("status", string(j.Status)).Logger()

		st, err := w.queue.Lookup(ctx, j.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			metrics.IncAIJobReconciled("orphaned")
			log.Warn().Time("updated_at", j.UpdatedAt).Msg("queue has no record of unfinished job")
			continue
		case err != nil:
			metrics.IncAIJobReconciled("error")
			log.Error().Err(err).Msg("queue lookup failed")
			continue
		case !st.Status.IsTerminal():
			metrics.IncAIJobReconciled("live")
			continue
		}

		upd := model.JobUpdate{Status: st.Status, Result: st.Result, Error: st.Error}
		if err := w.jobs.UpdateJob(ctx, j.ID, upd); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			metrics.IncAIJobReconciled("error")
			log.Error().Err(err).Msg("store sync failed")
			continue
		}
		metrics.IncAIJobReconciled("synced")
		log.Info().Str("queue_status", string(st.Status)).Msg("store synced from queue")
		synced++
	}
	return synced
}

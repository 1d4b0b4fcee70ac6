// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"notes-ai-jobs/internal/application"
	"notes-ai-jobs/internal/config"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/domain/ports/repository"
	aiAdapters "notes-ai-jobs/internal/infra/adapters/ai"
	"notes-ai-jobs/internal/infra/api"
	"notes-ai-jobs/internal/infra/backoff"
	pg "notes-ai-jobs/internal/infra/db/postgres"
	"notes-ai-jobs/internal/infra/logging"
	"notes-ai-jobs/internal/infra/metrics"
	"notes-ai-jobs/internal/infra/persist"
	"notes-ai-jobs/internal/infra/queue/asynqueue"
	"notes-ai-jobs/internal/infra/queue/memqueue"
	red "notes-ai-jobs/internal/infra/redis"
	"notes-ai-jobs/internal/infra/sched"
	"notes-ai-jobs/internal/infra/worker"
	"notes-ai-jobs/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo("app", version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("app stopped")
	}
	logger.Info().Msg("app stopped cleanly")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Stores ----
	jobsRepo := pg.NewAIJobRepo(pool, pg.NewTxManager(pool))
	cache := red.NewResultCache(redisClient, logger)
	budget := red.NewBudgetLimiter(redisClient, logger)
	inflight := red.NewInflightIndex(redisClient)

	g, gctx := errgroup.WithContext(ctx)

	// ---- Queue ----
	var queue adapter.JobQueue
	switch cfg.Queue.Backend {
	case "memory":
		mq := memqueue.New(memqueue.Options{
			MaxAttempts:    cfg.Jobs.Attempts,
			Backoff:        backoff.NewExponential(cfg.Jobs.BackoffBase, cfg.Jobs.BackoffMax),
			RetainTerminal: cfg.Queue.RetainTerminal,
		}, logger)
		proc, err := buildProcessor(gctx, cfg, pool, jobsRepo, cache, inflight, logger)
		if err != nil {
			return err
		}
		workers := worker.NewPool(cfg.Jobs.Concurrency, logger)
		workers.Start(gctx, mq, proc)
		g.Go(func() error {
			<-gctx.Done()
			mq.Close()
			workers.Wait()
			return nil
		})
		queue = mq
		logger.Warn().Msg("in-memory queue: queued jobs are lost on restart")
	default:
		redisOpt, err := asynqueue.RedisOpt(&cfg.Redis)
		if err != nil {
			return err
		}
		aq := asynqueue.New(redisOpt, asynqueue.OptionsFromConfig(cfg), logger)
		defer aq.Close()
		queue = aq
	}

	// ---- Facade ----
	resolver := application.NewStatusResolver(logger,
		application.QueueSource{Queue: queue},
		application.StoreSource{Jobs: jobsRepo},
	)
	facade := application.NewJobFacade(cache, budget, queue, jobsRepo, inflight, resolver, application.FacadeOptions{
		DailyHeavyLimit: cfg.Budget.DailyHeavyLimit,
		InflightTTL:     cfg.Jobs.InflightTTL,
		Persist:         persist.DefaultPolicy(),
		LogInputs:       cfg.Runtime.Dev,
	}, logger)

	// ---- HTTP ----
	srv := api.NewServer(facade, api.NewAuthenticator(cfg.Auth.JWTSecret), api.Options{
		HeavyPerMinute: cfg.HTTP.HeavyPerMinute,
		RequestTimeout: cfg.HTTP.WriteTimeout,
		Health: map[string]api.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisClient.Ping,
		},
	}, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Str("queue", cfg.Queue.Backend).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	g.Go(func() error {
		pg.ReportPoolStats(gctx, pool, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		sched.NewJobReconciler(jobsRepo, queue, cfg.Jobs.ReconcileInterval, cfg.Jobs.ReconcileAfter, logger).Start(gctx)
		return nil
	})

	return g.Wait()
}

// buildProcessor wires the handlers for every view behind the job processor.
func buildProcessor(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
	jobsRepo repository.AIJobRepository,
	cache repository.ResultCache,
	inflight repository.InflightIndex,
	logger *zerolog.Logger,
) (*worker.AIJobProcessor, error) {
	gen, err := aiAdapters.NewFromConfig(ctx, &cfg.AI, logger)
	if err != nil {
		return nil, err
	}
	registry := usecase.NewRegistry()
	usecase.NewInsightsUseCase(pg.NewNoteRepo(pool), gen, usecase.NewTokenCounter(), cfg.AI.ContextTokens, logger).
		RegisterHandlers(registry)
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return worker.NewAIJobProcessor(jobsRepo, cache, inflight, registry, worker.ProcessorOptions{
		HandlerTimeout: cfg.Jobs.HandlerTimeout,
		CacheTTL:       cfg.Jobs.TTLFor,
		Persist:        persist.DefaultPolicy(),
	}, logger), nil
}

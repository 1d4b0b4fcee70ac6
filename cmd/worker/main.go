// File: cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"notes-ai-jobs/internal/config"
	aiAdapters "notes-ai-jobs/internal/infra/adapters/ai"
	pg "notes-ai-jobs/internal/infra/db/postgres"
	"notes-ai-jobs/internal/infra/logging"
	"notes-ai-jobs/internal/infra/metrics"
	"notes-ai-jobs/internal/infra/persist"
	"notes-ai-jobs/internal/infra/queue/asynqueue"
	red "notes-ai-jobs/internal/infra/redis"
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
	metrics.SetBuildInfo("worker", version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
	logger.Info().Msg("worker stopped cleanly")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.Queue.Backend != "asynq" {
		return fmt.Errorf("queue backend %q runs its workers inside the app binary", cfg.Queue.Backend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	gen, err := aiAdapters.NewFromConfig(ctx, &cfg.AI, logger)
	if err != nil {
		return err
	}
	registry := usecase.NewRegistry()
	usecase.NewInsightsUseCase(pg.NewNoteRepo(pool), gen, usecase.NewTokenCounter(), cfg.AI.ContextTokens, logger).
		RegisterHandlers(registry)
	if err := registry.Validate(); err != nil {
		return err
	}

	proc := worker.NewAIJobProcessor(
		pg.NewAIJobRepo(pool, pg.NewTxManager(pool)),
		red.NewResultCache(redisClient, logger),
		red.NewInflightIndex(redisClient),
		registry,
		worker.ProcessorOptions{
			HandlerTimeout: cfg.Jobs.HandlerTimeout,
			CacheTTL:       cfg.Jobs.TTLFor,
			Persist:        persist.DefaultPolicy(),
		},
		logger,
	)

	redisOpt, err := asynqueue.RedisOpt(&cfg.Redis)
	if err != nil {
		return err
	}
	srv := asynqueue.NewServer(redisOpt, asynqueue.OptionsFromConfig(cfg), proc, logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("asynq server: %w", err)
	}
	logger.Info().Str("queue", cfg.Queue.Name).Int("concurrency", cfg.Jobs.Concurrency).Msg("worker started")

	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	srv.Shutdown()
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/briangreenhill/ccdash/internal/app"
	"github.com/briangreenhill/ccdash/internal/config"
	"github.com/briangreenhill/ccdash/internal/jobs"
	"github.com/briangreenhill/ccdash/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.RedisAddr == "" {
		log.Fatal().Msg("REDIS_ADDR is required for the worker")
	}

	logger := logging.New(cfg.Log)
	zerolog.DefaultContextLogger = &logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			jobs.QueueRefresh: 10, // higher priority
			"default":         5,
		},
		BaseContext: func() context.Context { return ctx },
		Logger:      jobs.NewAsynqLogger(logger),
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskRefreshCache, jobs.NewHandler(a.Coordinator))

	// Periodic warm keeps readers from paying for the refresh
	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{Logger: jobs.NewAsynqLogger(logger)})
	task, err := jobs.NewRefreshTask(jobs.RefreshPayload{Force: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("build scheduled task")
	}
	schedule := "@every " + cfg.RefreshEvery().String()
	if _, err := scheduler.Register(schedule, task); err != nil {
		logger.Fatal().Err(err).Str("schedule", schedule).Msg("register scheduled refresh")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Str("schedule", schedule).Msg("worker running")

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker stopped")
}

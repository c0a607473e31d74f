// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/briangreenhill/ccdash/internal/app"
	"github.com/briangreenhill/ccdash/internal/config"
	"github.com/briangreenhill/ccdash/internal/http/routes"
	"github.com/briangreenhill/ccdash/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// Logger
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

	opts := routes.ServerOptions{
		Logger:      logger,
		Coordinator: a.Coordinator,
		Resources:   a.Resources,
		Env:         a.Environment(),
	}

	// Background refreshes go through the worker when Redis is configured
	if cfg.RedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Msg("close asynq client")
			}
		}()
		opts.Enqueuer = client
	}

	s := routes.New(opts)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("mode", cfg.Mode()).Msg("starting api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	logger.Info().Msg("api stopped")
}

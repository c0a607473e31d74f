// Package app wires configuration into a running coordinator. The API
// server, the worker and the CLI all start from Build.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/ccdash/cache"
	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/config"
	"github.com/briangreenhill/ccdash/internal/providers"
	"github.com/briangreenhill/ccdash/internal/refresh"
	"github.com/briangreenhill/ccdash/internal/resources"
)

type App struct {
	Config      *config.Config
	Store       cache.Store
	Provider    providers.Provider
	Coordinator *refresh.Coordinator
	Resources   *resources.Service

	closers []func()
}

type Options struct {
	// HTTPClient is used for upstream calls; nil means a client with a
	// 30 second timeout.
	HTTPClient *http.Client
	OnProgress collector.ProgressFunc
}

// Build opens the configured store and provider. Close releases them.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := zerolog.Ctx(ctx)
	a := &App{Config: cfg}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	registry, err := providers.Setup(cfg, httpClient)
	if err != nil {
		a.Close()
		return nil, goerr.Wrap(err, "set up providers")
	}
	provider, err := providers.Select(cfg, registry)
	if err != nil {
		a.Close()
		return nil, goerr.Wrap(err, "select provider")
	}
	a.Provider = provider

	var reporter refresh.ErrorReporter
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			a.Close()
			return nil, goerr.Wrap(err, "init sentry")
		}
		a.closers = append(a.closers, func() { sentry.Flush(2 * time.Second) })
		reporter = refresh.NewSentryReporter(sentry.CurrentHub())
	}

	a.Coordinator = refresh.New(store, provider, refresh.Options{
		TTL:               cfg.Cache.TTL,
		RefreshTimeout:    cfg.Cache.RefreshTimeout,
		MemberConcurrency: cfg.Fetch.MemberConcurrency,
		MemberFetchDelay:  cfg.Fetch.MemberFetchDelay,
		Reporter:          reporter,
		OnProgress:        opts.OnProgress,
	})
	a.Resources = resources.NewService(store)

	logger.Info().
		Str("provider", provider.Name()).
		Str("store", cfg.Cache.Backend).
		Dur("ttl", cfg.Cache.TTL).
		Bool("sentry", reporter != nil).
		Msg("app ready")
	return a, nil
}

// Environment describes this deployment for the system endpoint.
func (a *App) Environment() resources.Environment {
	return resources.Environment{
		Mode:         a.Config.Mode(),
		Region:       a.Config.Genesys.Region,
		Organization: a.Config.Genesys.Organization,
		TTL:          a.Config.Cache.TTL,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) (cache.Store, error) {
	switch a.Config.Cache.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, a.Config.Cache.DatabaseURL)
		if err != nil {
			return nil, goerr.Wrap(err, "connect to database")
		}
		a.closers = append(a.closers, pool.Close)

		store := cache.NewPGStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := cache.NewFileCache(a.Config.Cache.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

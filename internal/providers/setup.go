package providers

import (
	"fmt"
	"net/http"

	"github.com/briangreenhill/ccdash/internal/config"
	"github.com/briangreenhill/ccdash/internal/mockdata"
	"github.com/briangreenhill/ccdash/internal/retry"
	"github.com/briangreenhill/ccdash/pkg/genesys"
)

// Setup creates a registry with all configured providers
func Setup(cfg *config.Config, httpClient *http.Client) (*Registry, error) {
	registry := NewRegistry()

	registry.Register(NewMockProvider(mockdata.New(cfg.Mock.Seed), cfg.Mock.UserCount))

	// Register Genesys provider if configured
	if cfg.HasGenesys() {
		opts := []genesys.Option{
			genesys.WithRegion(cfg.Genesys.Region),
			genesys.WithOrganization(cfg.Genesys.Organization),
			genesys.WithPageSize(cfg.Fetch.PageSize),
		}
		if httpClient != nil {
			opts = append(opts, genesys.WithHTTPClient(httpClient))
		}
		client, err := genesys.New(cfg.Genesys.ClientID, cfg.Genesys.ClientSecret, opts...)
		if err != nil {
			return nil, err
		}
		retrier := retry.New(retry.Policy{
			MaxRetries:     cfg.Fetch.MaxRetries,
			BaseDelay:      cfg.Fetch.RetryDelay,
			AttemptTimeout: cfg.Fetch.RequestTimeout,
		})
		registry.Register(NewGenesysProvider(client, retrier, cfg.Fetch.MaxPages))
	}

	return registry, nil
}

// Select returns the provider for the configured mode.
func Select(cfg *config.Config, registry *Registry) (Provider, error) {
	name := cfg.Mode()
	p, ok := registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured (available: %v)", name, registry.List())
	}
	return p, nil
}

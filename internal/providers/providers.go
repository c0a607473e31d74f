// Package providers contains the data sources the cache is rebuilt from
//
//go:generate mockgen -source=providers.go -destination=mocks/mock_providers.go -package=mocks
package providers

import (
	"context"
	"sort"

	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/model"
)

// Provider defines the interface that every data source must implement
type Provider interface {
	// Name returns the name of the provider (e.g., "mock", "genesys")
	Name() string

	// Begin opens a batch for one refresh cycle. Real sources authenticate
	// here, so a batch is opened at most once per cycle.
	Begin(ctx context.Context) (Batch, error)
}

// Batch fetches complete collections within one refresh cycle
type Batch interface {
	Users(ctx context.Context, onProgress collector.ProgressFunc) ([]model.User, error)
	Queues(ctx context.Context, onProgress collector.ProgressFunc) ([]model.Queue, error)
	QueueMembers(ctx context.Context, queueID string, onProgress collector.ProgressFunc) ([]model.QueueMember, error)
}

// Registry manages available data providers
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	provider, exists := r.providers[name]
	return provider, exists
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

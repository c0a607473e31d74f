package resources

import (
	"context"
	"time"

	"github.com/briangreenhill/ccdash/internal/refresh"
)

// StatusSource reports per-resource cache state.
type StatusSource interface {
	Status(ctx context.Context) []refresh.ResourceStatus
}

// Environment describes the running deployment.
type Environment struct {
	Mode         string
	Region       string
	Organization string
	TTL          time.Duration
}

type SystemInfo struct {
	UseMockData  bool   `json:"useMockData"`
	Mode         string `json:"mode"`
	Region       string `json:"region"`
	Organization string `json:"organization,omitempty"`
	// CacheExpiration is the TTL in milliseconds.
	CacheExpiration int64                    `json:"cacheExpiration"`
	ServerTime      time.Time                `json:"serverTime"`
	Resources       []refresh.ResourceStatus `json:"resources"`
}

// System describes the deployment and the state of every cached resource.
func (s *Service) System(ctx context.Context, env Environment, src StatusSource) SystemInfo {
	info := SystemInfo{
		UseMockData:     env.Mode == "mock",
		Mode:            env.Mode,
		Region:          env.Region,
		Organization:    env.Organization,
		CacheExpiration: env.TTL.Milliseconds(),
		ServerTime:      s.now().UTC(),
		Resources:       []refresh.ResourceStatus{},
	}
	if src != nil {
		info.Resources = src.Status(ctx)
	}
	return info
}

// Package jobs defines the background refresh task and its handler.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/ccdash/internal/refresh"
	"github.com/briangreenhill/ccdash/internal/retry"
)

const (
	TaskRefreshCache = "cache:refresh"

	// QueueRefresh is the asynq queue refresh tasks run on.
	QueueRefresh = "refresh"
)

type RefreshPayload struct {
	Resources []string `json:"resources,omitempty"`
	Force     bool     `json:"force,omitempty"`
}

// NewRefreshTask builds a refresh task. Tasks with the same payload are
// deduplicated while one is pending.
func NewRefreshTask(p RefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, goerr.Wrap(err, "marshal refresh payload")
	}
	return asynq.NewTask(TaskRefreshCache, data,
		asynq.Queue(QueueRefresh),
		asynq.MaxRetry(5),
		asynq.Unique(time.Minute),
	), nil
}

// Refresher is the part of refresh.Coordinator the worker drives.
type Refresher interface {
	EnsureFresh(ctx context.Context, names ...string) refresh.Report
	ForceRefresh(ctx context.Context, names ...string) refresh.Report
}

type Handler struct {
	refresher Refresher
}

func NewHandler(r Refresher) *Handler {
	return &Handler{refresher: r}
}

// ProcessTask implements asynq.Handler. A cycle that failed transiently
// returns an error so asynq retries it; permanent failures are dropped.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logger := zerolog.Ctx(ctx)

	var p RefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.Error().Err(err).Msg("bad refresh payload")
		return errors.Join(goerr.Wrap(err, "decode refresh payload"), asynq.SkipRetry)
	}

	start := time.Now()
	var report refresh.Report
	if p.Force {
		report = h.refresher.ForceRefresh(ctx, p.Resources...)
	} else {
		report = h.refresher.EnsureFresh(ctx, p.Resources...)
	}

	ev := logger.Info().
		Str("cycle_id", report.CycleID).
		Strs("refreshed", report.Refreshed()).
		Dur("duration", time.Since(start))

	if err := report.Err(); err != nil {
		if Retryable(report) {
			ev.Err(err).Msg("refresh failed, will retry")
			return err
		}
		ev.Err(err).Msg("refresh failed permanently, dropping task")
		return nil
	}
	ev.Msg("refresh done")
	return nil
}

// Retryable reports whether any failure in the cycle was transient.
func Retryable(report refresh.Report) bool {
	for _, o := range report.Outcomes {
		if o.Err != nil && retry.IsTransient(o.Err) {
			return true
		}
	}
	return false
}

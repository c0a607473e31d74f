package refresh

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SentryReporter forwards refresh failures to Sentry.
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

func (r *SentryReporter) Report(ctx context.Context, resource string, err error) {
	hub := r.hub.Clone()
	hub.Scope().SetTag("resource", resource)
	hub.Scope().SetTag("component", "refresh")
	hub.CaptureException(err)
}

package middleware

import (
	"context"
	"net/http"

	"github.com/briangreenhill/ccdash/internal/refresh"
)

// StaleHeader is set on responses served from a snapshot that could not be
// refreshed.
const StaleHeader = "X-Cache-Stale"

type contextKey string

const reportKey contextKey = "refresh_report"

// Refresher is the part of refresh.Coordinator the middleware needs.
type Refresher interface {
	EnsureFresh(ctx context.Context, names ...string) refresh.Report
}

// EnsureFresh refreshes the named resources before the handler reads them.
// A degraded cycle never fails the request.
func EnsureFresh(rf Refresher, names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			report := rf.EnsureFresh(r.Context(), names...)
			if report.Degraded() {
				w.Header().Set(StaleHeader, "true")
			}
			ctx := context.WithValue(r.Context(), reportKey, report)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReportFrom returns the refresh report EnsureFresh stored on the request.
func ReportFrom(ctx context.Context) (refresh.Report, bool) {
	report, ok := ctx.Value(reportKey).(refresh.Report)
	return report, ok
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// TagTransient marks an attempt that failed in a way worth retrying.
	TagTransient = goerr.NewTag("transient")

	// TagFinal marks the error returned once retrying has stopped.
	TagFinal = goerr.NewTag("final")
)

// StatusError is an upstream call that completed with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Transient reports whether the status is a rate limit or a server error.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// errAttemptTimeout is the cause recorded when a single attempt runs past
// its deadline while the caller's context is still live.
var errAttemptTimeout = errors.New("attempt timed out")

// IsTransient reports whether err is worth retrying: HTTP 429, HTTP 5xx, or
// a timeout. DNS failures, other 4xx responses and cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if goerr.HasTag(err, TagTransient) || errors.Is(err, errAttemptTimeout) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsFinal reports whether err was returned by Do after retrying stopped.
func IsFinal(err error) bool {
	return goerr.HasTag(err, TagFinal)
}

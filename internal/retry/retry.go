// Package retry wraps idempotent upstream calls with bounded exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

// DefaultPolicy returns 3 retries starting at 1s with a 30s attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		BaseDelay:      DefaultBaseDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Delay returns the wait before retry k (1-indexed).
func (p Policy) Delay(k int) time.Duration {
	if k < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(1<<(k-1))
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
	sleep  SleepFunc
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(r *Retrier) {
		r.sleep = fn
	}
}

// New creates a Retrier. Negative values in p fall back to the defaults.
func New(p Policy, opts ...Option) *Retrier {
	if p.MaxRetries < 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.AttemptTimeout < 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}

	r := &Retrier{policy: p, sleep: Sleep}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy the Retrier runs with.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls op until it succeeds, fails with a non-transient error, or
// MaxRetries retries have been spent. The returned error carries TagFinal.
func Do[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := zerolog.Ctx(ctx)

	for attempt := 1; ; attempt++ {
		v, err := runAttempt(ctx, r.policy.AttemptTimeout, op)
		if err == nil {
			return v, nil
		}

		retries := attempt - 1
		if !IsTransient(err) || retries >= r.policy.MaxRetries || ctx.Err() != nil {
			return zero, goerr.Wrap(err, "upstream call failed",
				goerr.T(TagFinal),
				goerr.V("attempts", attempt),
				goerr.V("transient", IsTransient(err)),
			)
		}

		delay := r.policy.Delay(attempt)
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("transient upstream failure, retrying")

		if err := r.sleep(ctx, delay); err != nil {
			return zero, goerr.Wrap(err, "retry wait interrupted",
				goerr.T(TagFinal),
				goerr.V("attempts", attempt),
			)
		}
	}
}

// runAttempt runs op once under its own deadline. Running past the deadline
// is reported as errAttemptTimeout so it classifies like a server error.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := op(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return v, goerr.Wrap(errAttemptTimeout, err.Error(), goerr.V("timeout", timeout))
	}
	return v, err
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

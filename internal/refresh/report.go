package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/briangreenhill/ccdash/cache"
	"github.com/briangreenhill/ccdash/internal/model"
)

// Outcome is what happened to one resource in a cycle.
type Outcome struct {
	Resource  string
	Refreshed bool
	// Shared is set when the outcome came from a refresh another caller
	// was already running.
	Shared  bool
	Skipped bool
	Err     error
}

// Report summarizes a refresh cycle.
type Report struct {
	CycleID  string
	Forced   bool
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Degraded reports whether any resource could not be refreshed and is being
// served from an older snapshot, or not at all.
func (r Report) Degraded() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}

// Refreshed lists the resources written in this cycle.
func (r Report) Refreshed() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Refreshed {
			out = append(out, o.Resource)
		}
	}
	return out
}

// Err joins every failure in the cycle.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// State is the lifecycle position of a cached resource.
type State string

const (
	StateFresh      State = "FRESH"
	StateStale      State = "STALE"
	StateRefreshing State = "REFRESHING"
)

type ResourceStatus struct {
	Name        string     `json:"name"`
	State       State      `json:"state"`
	Exists      bool       `json:"exists"`
	WrittenAt   *time.Time `json:"writtenAt,omitempty"`
	AgeSeconds  float64    `json:"ageSeconds"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	Refreshes   int        `json:"refreshes"`
	Failures    int        `json:"failures"`
}

// Status reports the state of every resource.
func (c *Coordinator) Status(ctx context.Context) []ResourceStatus {
	now := c.opts.Now()
	out := make([]ResourceStatus, 0, len(model.Resources))

	for _, name := range model.Resources {
		st := ResourceStatus{Name: name, State: StateStale}

		if written, err := cache.LastWrite(ctx, c.store, name); err == nil && !written.IsZero() {
			st.Exists = true
			st.WrittenAt = &written
			st.AgeSeconds = now.Sub(written).Seconds()
			if cache.IsFresh(written, now, c.opts.TTL) {
				st.State = StateFresh
			}
		}

		c.mu.Lock()
		s := c.states[name]
		if s.refreshing {
			st.State = StateRefreshing
		}
		st.LastAttempt = timePtr(s.lastAttempt)
		st.LastSuccess = timePtr(s.lastSuccess)
		if s.lastErr != nil {
			st.LastError = s.lastErr.Error()
		}
		st.Refreshes = s.refreshes
		st.Failures = s.failures
		c.mu.Unlock()

		out = append(out, st)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

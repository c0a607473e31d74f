// Package cache persists named JSON snapshots and decides whether they are
// still fresh.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no snapshot exists for a name.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorrupt is returned when a stored snapshot cannot be decoded.
	ErrCorrupt = errors.New("snapshot corrupt")
)

// Entry is the envelope every snapshot is stored in.
type Entry struct {
	Name      string          `json:"name"`
	WrittenAt time.Time       `json:"written_at"`
	Body      json.RawMessage `json:"body"`
}

// Decode unmarshals the snapshot payload into out.
func (e *Entry) Decode(out any) error {
	return json.Unmarshal(e.Body, out)
}

// Reader defines the interface for reading snapshots
type Reader interface {
	// Read returns the snapshot stored under name, ErrNotFound when there is
	// none and ErrCorrupt when it cannot be decoded.
	Read(ctx context.Context, name string) (*Entry, error)
}

// Stamper is implemented by stores that can report when a snapshot was
// written without loading its body.
type Stamper interface {
	// WrittenAt returns the write time of the snapshot stored under name,
	// ErrNotFound when there is none and ErrCorrupt when it is unreadable.
	WrittenAt(ctx context.Context, name string) (time.Time, error)
}

// Writer defines the interface for replacing and removing snapshots
type Writer interface {
	// Save replaces the snapshot stored under name with value. The previous
	// snapshot stays intact when Save fails.
	Save(ctx context.Context, name string, value any) error

	// Delete removes the snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, name string) error
}

// Store combines both snapshot operations
type Store interface {
	Reader
	Writer
}

// Option configures a Store implementation.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the clock used to stamp WrittenAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

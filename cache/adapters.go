package cache

import (
	"context"
	"errors"
	"time"
)

// Load decodes the snapshot stored under name into a T. A missing or corrupt
// snapshot yields def and no error; any other failure yields def and the error.
func Load[T any](ctx context.Context, r Reader, name string, def T) (T, error) {
	entry, err := r.Read(ctx, name)
	if err != nil {
		if IsAbsent(err) {
			return def, nil
		}
		return def, err
	}

	var out T
	if err := entry.Decode(&out); err != nil {
		return def, nil
	}
	return out, nil
}

// Exists reports whether a readable snapshot is stored under name.
func Exists(ctx context.Context, r Reader, name string) (bool, error) {
	_, err := r.Read(ctx, name)
	if err != nil {
		if IsAbsent(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LastWrite returns the time the snapshot was written, or the zero time when
// there is none. Stores implementing Stamper skip loading the body.
func LastWrite(ctx context.Context, r Reader, name string) (time.Time, error) {
	var (
		written time.Time
		err     error
	)
	if st, ok := r.(Stamper); ok {
		written, err = st.WrittenAt(ctx, name)
	} else {
		var entry *Entry
		if entry, err = r.Read(ctx, name); err == nil {
			written = entry.WrittenAt
		}
	}
	if err != nil {
		if IsAbsent(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return written, nil
}

// Age reports how long ago the snapshot was written. ok is false when there
// is no snapshot.
func Age(ctx context.Context, r Reader, name string, now time.Time) (age time.Duration, ok bool, err error) {
	written, err := LastWrite(ctx, r, name)
	if err != nil || written.IsZero() {
		return 0, false, err
	}
	return now.Sub(written), true, nil
}

// IsAbsent reports whether err means there is no usable snapshot.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt)
}

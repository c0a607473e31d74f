package cache

import "time"

// IsFresh reports whether a snapshot written at lastWrite is still valid at
// now. A zero lastWrite means the snapshot does not exist and is never fresh,
// and a ttl <= 0 makes every snapshot stale.
func IsFresh(lastWrite, now time.Time, ttl time.Duration) bool {
	if lastWrite.IsZero() || ttl <= 0 {
		return false
	}
	return now.Sub(lastWrite) < ttl
}

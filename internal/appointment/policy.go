package appointment

import "time"

// CancellationAllowed reports whether a patient may still self-cancel an
// appointment starting at startsAt: the remaining lead time must be at least
// window. Staff-initiated cancellation never consults this.
func CancellationAllowed(startsAt, now time.Time, window time.Duration) bool {
	return startsAt.Sub(now) >= window
}

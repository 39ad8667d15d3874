package acme

import "time"

// backoffState implements the retryable-error backoff: each consecutive
// retryable failure doubles the wait, capped, until a success resets it
// to zero.
type backoffState struct {
	failures int
	until    time.Time
}

const (
	backoffBase = 5 * time.Second
	backoffCap  = 30 * time.Minute
)

func (b *backoffState) ready(now time.Time) bool {
	return b.until.IsZero() || now.After(b.until)
}

func (b *backoffState) recordFailure(now time.Time) {
	b.failures++
	wait := backoffBase << uint(min(b.failures-1, 20))
	if wait > backoffCap {
		wait = backoffCap
	}
	b.until = now.Add(wait)
}

func (b *backoffState) reset() {
	b.failures = 0
	b.until = time.Time{}
}

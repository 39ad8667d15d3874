// Package proxy implements the reverse-proxy engine of spec.md §4.7: per
// UpstreamGroup connection pooling, load-balancing selection, passive
// health tracking, and HTTP forwarding semantics (header stripping,
// X-Forwarded-*, WebSocket/CONNECT upgrade passthrough).
package proxy

import (
	"sync"
	"sync/atomic"
	"time"
)

// Backend is one member of an UpstreamGroup.
type Backend struct {
	Address string // host:port, or a unix:// / h2c:// prefixed URL
	Weight  int

	inFlight   atomic.Int64
	generation atomic.Uint64

	mu             sync.Mutex
	consecFails    int
	lastFailure    time.Time
	unhealthyUntil time.Time
}

// InFlight returns the current number of in-flight requests against this
// backend, used by least-conn and P2C selection.
func (b *Backend) InFlight() int64 { return b.inFlight.Load() }

// Generation tags pooled connections so a reload that changes a backend's
// address doesn't hand a request a connection to the old address; pool
// entries compare their captured generation against Backend.Generation()
// before reuse.
func (b *Backend) Generation() uint64 { return b.generation.Load() }

// Retire bumps the generation, invalidating every previously pooled
// connection's identity check without needing to walk the pool.
func (b *Backend) Retire() { b.generation.Add(1) }

// Healthy reports whether the backend is currently eligible for selection,
// i.e. not excluded by the passive health tracker, per spec.md §4.7 and
// testable invariants.
func (b *Backend) Healthy(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unhealthyUntil.IsZero() {
		return true
	}
	return now.After(b.unhealthyUntil)
}

// RecordResult updates the rolling consecutive-failure count. maxFails
// consecutive failures marks the backend unhealthy for window; any success
// resets the counter and clears the unhealthy mark immediately.
func (b *Backend) RecordResult(ok bool, maxFails int, window time.Duration, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.consecFails = 0
		b.unhealthyUntil = time.Time{}
		return
	}
	b.consecFails++
	b.lastFailure = now
	if maxFails > 0 && b.consecFails >= maxFails {
		b.unhealthyUntil = now.Add(window)
	}
}

func (b *Backend) acquire() { b.inFlight.Add(1) }
func (b *Backend) release() { b.inFlight.Add(-1) }

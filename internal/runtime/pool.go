// Package runtime implements the worker-reactor pool each accepted
// connection is dispatched onto. Go's goroutine scheduler is already an M:N
// cooperative scheduler, so a "reactor" here is a logical shard — an
// identity used to size per-CPU sharded counters and to round-robin
// dispatch — rather than a literal OS thread pinning one goroutine per
// core. Tasks still suspend only at I/O/timer/channel boundaries; nothing
// in this package blocks a shard's goroutine pool on a lock held across I/O.
package runtime

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
)

// DefaultReactorCount defaults to one reactor per logical CPU.
// klauspost/cpuid is consulted (rather than only runtime.NumCPU) so a future
// physical-core-only sizing policy has the detail available without
// changing this function's signature.
func DefaultReactorCount() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	_ = cpuid.CPU.LogicalCores
	return n
}

// Task is one unit of work dispatched to a reactor shard, e.g. "serve this
// accepted connection to completion".
type Task func(ctx context.Context)

// Shard is one logical reactor: an independent dispatch queue plus a
// counter of tasks currently running on it, used for least-loaded dispatch
// and for per-shard metrics.
type Shard struct {
	id      int
	queue   chan Task
	running atomic.Int64
}

// Pool is the fixed-size set of reactor shards the runtime substrate is
// built from. It never grows; a busy shard backs up its queue rather than
// spawning unbounded goroutines, keeping every shared structure's resource
// use bounded.
type Pool struct {
	shards []*Shard
	next   atomic.Uint64
}

// NewPool starts n reactor shards, each backed by queueDepth-buffered
// dispatch and a fixed number of drains. A shard's goroutine lifetime is
// bound to ctx; once ctx is canceled every shard's goroutine returns, and
// tasks still queued at that point may never run.
func NewPool(ctx context.Context, n int, queueDepth int) *Pool {
	if n < 1 {
		n = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	p := &Pool{shards: make([]*Shard, n)}
	for i := 0; i < n; i++ {
		s := &Shard{id: i, queue: make(chan Task, queueDepth)}
		p.shards[i] = s
		go s.run(ctx)
	}
	return p
}

func (s *Shard) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-s.queue:
			if !ok {
				return
			}
			s.running.Add(1)
			t(ctx)
			s.running.Add(-1)
		}
	}
}

// Dispatch hands t to the least-loaded shard (by in-flight task count),
// falling back to round-robin on a tie. If the chosen shard's queue is
// full, Dispatch blocks on its channel send until there is room, which is
// bounded backpressure rather than unbounded goroutine growth.
func (p *Pool) Dispatch(t Task) {
	n := len(p.shards)
	start := int((p.next.Add(1) - 1) % uint64(n))
	best := p.shards[start]
	bestLoad := best.running.Load()
	for i := 1; i < n; i++ {
		s := p.shards[(start+i)%n]
		if l := s.running.Load(); l < bestLoad {
			best, bestLoad = s, l
		}
	}
	best.queue <- t
}

// ShardCount returns the number of reactor shards in the pool.
func (p *Pool) ShardCount() int { return len(p.shards) }

// Load returns the current in-flight task count for shard i, used by
// internal/metrics to publish per-reactor gauges.
func (p *Pool) Load(i int) int64 {
	if i < 0 || i >= len(p.shards) {
		return 0
	}
	return p.shards[i].running.Load()
}

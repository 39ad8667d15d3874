package proxy

import (
	"net"
	"testing"
	"time"
)

func TestSelectSkipsUnhealthyBackend(t *testing.T) {
	healthy := &Backend{Address: "a:1"}
	unhealthy := &Backend{Address: "b:1"}
	unhealthy.RecordResult(false, 1, time.Minute, time.Now())

	g := NewUpstreamGroup(GroupConfig{Algorithm: AlgorithmRoundRobin, MaxFails: 1, HealthCheckWindow: time.Minute}, []*Backend{healthy, unhealthy})

	for i := 0; i < 5; i++ {
		b, err := g.Select(time.Now())
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if b != healthy {
			t.Fatalf("expected only the healthy backend to be selected, got %s", b.Address)
		}
		g.Release(b)
	}
}

func TestSelectReturnsErrorWhenAllUnhealthy(t *testing.T) {
	b1 := &Backend{Address: "a:1"}
	b1.RecordResult(false, 1, time.Hour, time.Now())

	g := NewUpstreamGroup(GroupConfig{Algorithm: AlgorithmRandom, MaxFails: 1, HealthCheckWindow: time.Hour}, []*Backend{b1})

	if _, err := g.Select(time.Now()); err != ErrNoHealthyBackend {
		t.Fatalf("expected ErrNoHealthyBackend, got %v", err)
	}
}

func TestLeastConnPicksLowerInFlight(t *testing.T) {
	busy := &Backend{Address: "a:1"}
	idle := &Backend{Address: "b:1"}
	busy.acquire()
	busy.acquire()

	g := NewUpstreamGroup(GroupConfig{Algorithm: AlgorithmLeastConn}, []*Backend{busy, idle})
	chosen, err := g.Select(time.Now())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chosen != idle {
		t.Fatalf("expected least-loaded backend to be chosen, got %s", chosen.Address)
	}
}

func TestBackendRecoversAfterHealthWindow(t *testing.T) {
	b := &Backend{Address: "a:1"}
	now := time.Now()
	b.RecordResult(false, 1, time.Millisecond, now)
	if b.Healthy(now) {
		t.Fatal("expected backend to be unhealthy immediately after crossing max_fails")
	}
	if !b.Healthy(now.Add(10 * time.Millisecond)) {
		t.Fatal("expected backend to recover once the health window elapses")
	}
}

func TestPoolIdleAcquireReleaseRoundTrip(t *testing.T) {
	p := NewPool()
	b := &Backend{Address: "a:1"}
	entry := &PoolEntry{Conn: nil, Backend: b, Generation: b.Generation()}

	if got := p.AcquireIdle(b); got != nil {
		t.Fatalf("expected no idle entry yet, got %+v", got)
	}
	p.idle[b.Address] = append(p.idle[b.Address], entry)
	got := p.AcquireIdle(b)
	if got != entry {
		t.Fatalf("expected to acquire the released entry, got %+v", got)
	}
}

func TestPoolDiscardsStaleGeneration(t *testing.T) {
	p := NewPool()
	b := &Backend{Address: "a:1"}
	entry := &PoolEntry{Conn: &discardableConn{}, Backend: b, Generation: b.Generation()}
	p.idle[b.Address] = append(p.idle[b.Address], entry)

	b.Retire() // generation bump invalidates the pooled entry

	if got := p.AcquireIdle(b); got != nil {
		t.Fatalf("expected stale-generation entry to be discarded, got %+v", got)
	}
}

type discardableConn struct{ net.Conn }

func (discardableConn) Close() error { return nil }

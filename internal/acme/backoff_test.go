package acme

import (
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	var b backoffState
	now := time.Now()

	if !b.ready(now) {
		t.Fatal("expected fresh backoff to be ready immediately")
	}

	b.recordFailure(now)
	first := b.until.Sub(now)
	b.recordFailure(now)
	second := b.until.Sub(now)
	if second <= first {
		t.Fatalf("expected backoff to grow, got %s then %s", first, second)
	}

	for i := 0; i < 30; i++ {
		b.recordFailure(now)
	}
	if b.until.Sub(now) > backoffCap+time.Second {
		t.Fatalf("expected backoff to cap at %s, got %s", backoffCap, b.until.Sub(now))
	}
}

func TestBackoffResetClearsWait(t *testing.T) {
	var b backoffState
	now := time.Now()
	b.recordFailure(now)
	if b.ready(now) {
		t.Fatal("expected backoff to deny issuance immediately after a failure")
	}
	b.reset()
	if !b.ready(now) {
		t.Fatal("expected reset to clear the backoff window")
	}
}

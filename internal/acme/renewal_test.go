package acme

import (
	"testing"
	"time"
)

func TestDueForRenewalAtTwoThirdsLifetime(t *testing.T) {
	issued := time.Now().Add(-80 * 24 * time.Hour) // 80 days ago
	order := &Order{IssuedAt: issued, NotAfter: issued.Add(90 * 24 * time.Hour)}
	if !dueForRenewal(order, time.Now()) {
		t.Fatal("expected a 90-day cert at day 80 (past 2/3 = day 60) to be due for renewal")
	}
}

func TestNotDueForRenewalEarlyInLifetime(t *testing.T) {
	issued := time.Now().Add(-10 * 24 * time.Hour)
	order := &Order{IssuedAt: issued, NotAfter: issued.Add(90 * 24 * time.Hour)}
	if dueForRenewal(order, time.Now()) {
		t.Fatal("expected a fresh 90-day cert at day 10 to not be due yet")
	}
}

func TestRenewerWatchIsIdempotent(t *testing.T) {
	r := NewRenewer(nil)
	r.Watch([]string{"a.test"})
	r.Watch([]string{"a.test"})
	if len(r.watched) != 1 {
		t.Fatalf("expected one watched domain set, got %d", len(r.watched))
	}
}

package acme

import (
	"context"
	"sync"
	"time"
)

// Renewer periodically scans tracked orders and re-obtains any that have
// crossed their renewal threshold of 2/3 of the certificate's lifetime.
// ARI renewal windows are not fetched or consulted, even when the order
// carries a RenewalID.
type Renewer struct {
	manager *Manager
	mu      sync.Mutex
	watched map[string][]string // DomainSetKey -> domains
}

func NewRenewer(manager *Manager) *Renewer {
	return &Renewer{manager: manager, watched: map[string][]string{}}
}

// Watch adds a domain set to the renewal scan, idempotently.
func (r *Renewer) Watch(domains []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched[DomainSetKey(domains)] = domains
}

// Run scans every interval until ctx is canceled, renewing any order due.
// Renewals for different domain sets proceed independently; within one
// domain set, Manager.Obtain's per-account mutex still serializes the
// actual ACME exchange.
func (r *Renewer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(ctx)
		}
	}
}

func (r *Renewer) scanOnce(ctx context.Context) {
	r.mu.Lock()
	domainSets := make([][]string, 0, len(r.watched))
	for _, domains := range r.watched {
		domainSets = append(domainSets, domains)
	}
	r.mu.Unlock()

	now := time.Now()
	for _, domains := range domainSets {
		order, ok := r.manager.Order(domains)
		if !ok || order.State != StateValid {
			continue
		}
		if !dueForRenewal(order, now) {
			continue
		}
		if err := r.manager.Obtain(ctx, domains); err != nil {
			log.WithError(err).WithField("domains", domains).Warn("scheduled renewal failed")
		}
	}
}

// dueForRenewal reports whether now is past 2/3 of the order's lifetime
// (IssuedAt to NotAfter). It does not read RenewalID, and no ARI
// renewalInfo request is made anywhere in this package.
func dueForRenewal(order *Order, now time.Time) bool {
	if order.NotAfter.IsZero() {
		return false
	}
	lifetime := order.NotAfter.Sub(order.IssuedAt)
	if lifetime <= 0 {
		return now.After(order.NotAfter)
	}
	renewAt := order.IssuedAt.Add(lifetime * 2 / 3)
	return now.After(renewAt)
}

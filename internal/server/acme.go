package server

import (
	"context"
	"time"

	"github.com/mholt/acmez/v3"

	"github.com/ferronweb/ferron/internal/acme"
	"github.com/ferronweb/ferron/internal/acme/challenge"
	"github.com/ferronweb/ferron/internal/tlsresolver"
)

// ACMEConfig carries the account/provider knobs a process needs to run the
// ACME manager; zero value disables ACME entirely (no solvers, no manager),
// leaving on-demand TLS and renewal both inert.
type ACMEConfig struct {
	Enabled         bool
	DirectoryURL    string
	Contact         string
	EABKeyID        string
	EABHMACKeyB64   string
	CacheDir        string
	OnDemandEnabled bool
	RenewBefore     time.Duration
	RenewInterval   time.Duration

	// DNSProvider is optional; when nil, dns-01 is not registered as an
	// available challenge type. internal/acme/challenge.Provider is the seam
	// a concrete libdns provider plugs into (set up by the caller, e.g.
	// cmd/ferron, from --dns-provider style flags not modeled here).
	DNSProvider challenge.Provider
	DNSZone     string
}

// acmeBundle is everything wiring an ACMEConfig into a running process
// produces: the manager (an Issuer and a ReloadParticipant), the HTTP-01
// solver (consulted ahead of the matcher), and the renewer's background loop.
type acmeBundle struct {
	manager *acme.Manager
	http01  *challenge.HTTP01Solver
	renewer *acme.Renewer
}

// wireACME builds the manager and its challenge solvers: http-01 and
// tls-alpn-01 always, dns-01 only when cfg.DNSProvider is set. A nil
// *acmeBundle (when cfg.Enabled is false) means no Issuer is
// installed, so tlsresolver.Resolver's on-demand path is permanently
// disabled regardless of a host's `auto_tls_on_demand` directive.
func wireACME(cfg ACMEConfig, store *tlsresolver.CertStore) *acmeBundle {
	if !cfg.Enabled {
		return nil
	}

	http01 := challenge.NewHTTP01Solver()
	tlsalpn01 := challenge.NewTLSALPN01Solver(store)

	solvers := map[acme.ChallengeType]acmez.Solver{
		acme.ChallengeHTTP01:    http01,
		acme.ChallengeTLSALPN01: tlsalpn01,
	}
	if cfg.DNSProvider != nil {
		solvers[acme.ChallengeDNS01] = challenge.NewDNS01Solver(cfg.DNSProvider, cfg.DNSZone)
	}

	manager := acme.NewManager(acme.Config{
		Account: acme.AccountConfig{
			DirectoryURL:  cfg.DirectoryURL,
			Contact:       cfg.Contact,
			EABKeyID:      cfg.EABKeyID,
			EABHMACKeyB64: cfg.EABHMACKeyB64,
		},
		CacheDir:        cfg.CacheDir,
		OnDemandEnabled: cfg.OnDemandEnabled,
		RenewBefore:     cfg.RenewBefore,
	}, store, solvers)

	return &acmeBundle{
		manager: manager,
		http01:  http01,
		renewer: acme.NewRenewer(manager),
	}
}

// runRenewalLoop blocks until ctx is canceled, periodically scanning tracked
// orders for renewal under the renewer's 2/3-lifetime rule.
func (b *acmeBundle) runRenewalLoop(ctx context.Context, interval time.Duration) {
	if b == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	b.renewer.Run(ctx, interval)
}

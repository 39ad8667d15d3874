package tlsresolver

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ferronweb/ferron/internal/logging"
)

var log = logging.Root("tlsresolver")

// ErrOnDemandDenied is returned when auto_tls_on_demand_ask rejects a SNI.
var ErrOnDemandDenied = errors.New("tlsresolver: on-demand issuance denied by ask gate")

// ErrNoBundle is returned when no certificate could be resolved and
// on-demand issuance is disabled or failed.
var ErrNoBundle = errors.New("tlsresolver: no certificate bundle available")

// Issuer requests on-demand issuance for a hostname, returning once a
// bundle is installed in the store (or failing). The ACME manager supplies
// the concrete implementation; tlsresolver only needs the seam, keeping the
// two packages decoupled as spec.md §2's component boundaries describe.
type Issuer interface {
	IssueOnDemand(ctx context.Context, hostname string) error
}

// OnDemandConfig carries the §4.3 on-demand TLS knobs.
type OnDemandConfig struct {
	Enabled  bool
	AskURL   string // auto_tls_on_demand_ask
	Deadline time.Duration
	HTTP     *http.Client
}

// Resolver ties a CertStore to the on-demand issuance path and exposes a
// tls.Config GetCertificate callback plus an ALPN protocol preference list.
type Resolver struct {
	store    *CertStore
	issuer   Issuer
	onDemand OnDemandConfig
	alpn     []string
}

func NewResolver(store *CertStore, issuer Issuer, onDemand OnDemandConfig, alpnPreference []string) *Resolver {
	if onDemand.HTTP == nil {
		onDemand.HTTP = &http.Client{Timeout: 5 * time.Second}
	}
	if onDemand.Deadline == 0 {
		onDemand.Deadline = 10 * time.Second
	}
	return &Resolver{store: store, issuer: issuer, onDemand: onDemand, alpn: alpnPreference}
}

// ALPNProtocols returns the ALPN advertisement list in configured
// preference order, for building a *tls.Config.
func (r *Resolver) ALPNProtocols() []string { return r.alpn }

// GetCertificate implements tls.Config.GetCertificate: selection order
// exact -> wildcard -> fallback, with on-demand issuance engaged only on a
// full miss.
func (r *Resolver) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if b := r.store.Resolve(hello.ServerName); b != nil {
		return b.Cert, nil
	}

	if !r.onDemand.Enabled || hello.ServerName == "" {
		return nil, ErrNoBundle
	}

	if err := r.askGate(hello.ServerName); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(hello.Context(), r.onDemand.Deadline)
	defer cancel()

	if err := r.issuer.IssueOnDemand(ctx, hello.ServerName); err != nil {
		log.WithError(err).Warn("on-demand issuance failed")
		return nil, ErrNoBundle
	}

	if b := r.store.Resolve(hello.ServerName); b != nil {
		return b.Cert, nil
	}
	return nil, ErrNoBundle
}

// askGate calls auto_tls_on_demand_ask, a gate endpoint that must answer 2xx
// for issuance to proceed, per spec.md §4.3.
func (r *Resolver) askGate(hostname string) error {
	if r.onDemand.AskURL == "" {
		return nil
	}
	u, err := url.Parse(r.onDemand.AskURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("domain", hostname)
	u.RawQuery = q.Encode()

	resp, err := r.onDemand.HTTP.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrOnDemandDenied
	}
	return nil
}

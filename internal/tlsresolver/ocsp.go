package tlsresolver

import (
	"bytes"
	"context"
	"crypto/x509"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// OCSPRefresher periodically re-fetches OCSP responses for every bundle
// installed in a CertStore, serving the stale staple while a refresh is in
// flight per spec.md §4.3 ("stale OCSP is served while a refresh is
// scheduled").
type OCSPRefresher struct {
	store    *CertStore
	client   *http.Client
	interval time.Duration
}

func NewOCSPRefresher(store *CertStore, interval time.Duration) *OCSPRefresher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &OCSPRefresher{store: store, client: &http.Client{Timeout: 10 * time.Second}, interval: interval}
}

// Run refreshes every pattern's staple on a ticker until ctx is canceled.
func (r *OCSPRefresher) Run(ctx context.Context, patterns func() []string) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, p := range patterns() {
				r.refreshOne(ctx, p)
			}
		}
	}
}

func (r *OCSPRefresher) refreshOne(ctx context.Context, pattern string) {
	m := *r.store.ptr.Load()
	b, ok := m[pattern]
	if !ok || b.Cert == nil || len(b.Cert.Certificate) < 2 {
		return
	}

	leaf, err := x509.ParseCertificate(b.Cert.Certificate[0])
	if err != nil || len(leaf.OCSPServer) == 0 {
		return
	}
	issuer, err := x509.ParseCertificate(b.Cert.Certificate[1])
	if err != nil {
		return
	}

	req, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, leaf.OCSPServer[0], bytes.NewReader(req))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		b.OCSPStale = true
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		b.OCSPStale = true
		return
	}

	if _, err := ocsp.ParseResponseForCert(raw, leaf, issuer); err != nil {
		b.OCSPStale = true
		return
	}

	updated := *b
	updated.OCSPStaple = raw
	updated.OCSPStale = false
	cert := *b.Cert
	cert.OCSPStaple = raw
	updated.Cert = &cert
	r.store.Put(pattern, &updated)
}

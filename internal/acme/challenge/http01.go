// Package challenge implements the three ACME validation methods, each as
// an mholt/acmez/v3 Solver: HTTP-01 (serve a token
// under /.well-known/acme-challenge/), TLS-ALPN-01 (attach a synthetic
// certificate for the acme-tls/1 ALPN protocol), and DNS-01 (drive a
// libdns provider to set a TXT record and wait for propagation via
// miekg/dns).
package challenge

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/mholt/acmez/v3/acme"
)

// HTTP01Solver answers the http-01 challenge by serving the key
// authorization for each presented token and removing it on cleanup.
type HTTP01Solver struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewHTTP01Solver() *HTTP01Solver {
	return &HTTP01Solver{tokens: map[string]string{}}
}

func (s *HTTP01Solver) Present(ctx context.Context, chal acme.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[chal.Token] = chal.KeyAuthorization
	return nil
}

func (s *HTTP01Solver) Wait(ctx context.Context, chal acme.Challenge) error {
	return nil
}

func (s *HTTP01Solver) CleanUp(ctx context.Context, chal acme.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, chal.Token)
	return nil
}

// wellKnownPrefix is the fixed resource path RFC 8555 §8.3 mandates.
const wellKnownPrefix = "/.well-known/acme-challenge/"

// ServeHTTP answers a GET under wellKnownPrefix, reporting whether the
// path matched at all (regardless of whether the token was known) so the
// caller's pre-matcher hook knows not to fall through to the pipeline.
func (s *HTTP01Solver) ServeHTTP(w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, wellKnownPrefix) {
		return false
	}
	token := strings.TrimPrefix(r.URL.Path, wellKnownPrefix)

	s.mu.RLock()
	keyAuth, ok := s.tokens[token]
	s.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return true
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(keyAuth))
	return true
}

// Package tlsresolver resolves an incoming TLS handshake's SNI/ALPN to a
// certificate bundle and ALPN protocol list, per spec.md §4.3. CertStore is
// the copy-on-write map spec.md §3's Ownership paragraph calls for ("CertStore
// is shared by all workers via a snapshotable map (copy-on-write)"),
// adapted from the teacher's certificates package structure (a config/model
// split) down to the single concern this domain needs: certificate lookup,
// not certificate loading mechanics.
package tlsresolver

import (
	"crypto/tls"
	"strings"
	"sync/atomic"
)

// ACMETLS1Protocol is the ALPN protocol name TLS-ALPN-01 negotiates during
// the challenge handshake, RFC 8737 §3. Listeners that may ever serve a
// TLS-ALPN-01 challenge must advertise it alongside their normal protocols.
const ACMETLS1Protocol = "acme-tls/1"

// Bundle is one resolvable certificate identity: the TLS certificate plus,
// when present, a cached OCSP staple.
type Bundle struct {
	Cert       *tls.Certificate
	OCSPStaple []byte
	OCSPStale  bool
}

// certMap is the copy-on-write snapshot CertStore hands out; keys are
// lower-cased exact hostnames or "*.suffix" wildcard patterns, plus the
// empty string for the bundled fallback.
type certMap map[string]*Bundle

// CertStore is the live, swappable certificate index every TLS handshake
// consults. Updates (ACME issuance/renewal) build a new certMap and swap it
// in atomically; readers never see a partially-updated map.
type CertStore struct {
	ptr atomic.Pointer[certMap]
}

func NewCertStore() *CertStore {
	s := &CertStore{}
	empty := certMap{}
	s.ptr.Store(&empty)
	return s
}

// Put installs or replaces the bundle for pattern ("example.com",
// "*.example.com", or "" for the fallback). It copies the current map,
// mutates the copy, and swaps it in — the copy-on-write discipline spec.md
// requires so in-flight handshakes reading the old map are never disturbed.
func (s *CertStore) Put(pattern string, b *Bundle) {
	pattern = strings.ToLower(pattern)
	old := *s.ptr.Load()
	next := make(certMap, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[pattern] = b
	s.ptr.Store(&next)
}

// Delete removes pattern from the store, copy-on-write.
func (s *CertStore) Delete(pattern string) {
	pattern = strings.ToLower(pattern)
	old := *s.ptr.Load()
	if _, ok := old[pattern]; !ok {
		return
	}
	next := make(certMap, len(old))
	for k, v := range old {
		if k != pattern {
			next[k] = v
		}
	}
	s.ptr.Store(&next)
}

// Resolve implements spec.md §4.3's certificate selection order: (a) exact
// SNI match, (b) right-anchored wildcard match, (c) bundled fallback ("").
func (s *CertStore) Resolve(sni string) *Bundle {
	m := *s.ptr.Load()
	sni = strings.ToLower(sni)

	if b, ok := m[sni]; ok {
		return b
	}

	if i := strings.IndexByte(sni, '.'); i >= 0 {
		wildcard := "*" + sni[i:]
		if b, ok := m[wildcard]; ok {
			return b
		}
	}

	if b, ok := m[""]; ok {
		return b
	}
	return nil
}

// Has reports whether pattern currently has a bundle, used by the on-demand
// issuance gate to decide whether a fresh order is needed.
func (s *CertStore) Has(pattern string) bool {
	m := *s.ptr.Load()
	_, ok := m[strings.ToLower(pattern)]
	return ok
}

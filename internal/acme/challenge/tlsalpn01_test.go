package challenge

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/mholt/acmez/v3/acme"

	"github.com/ferronweb/ferron/internal/tlsresolver"
)

func TestTLSALPN01PresentInstallsSyntheticCert(t *testing.T) {
	store := tlsresolver.NewCertStore()
	s := NewTLSALPN01Solver(store)
	chal := acme.Challenge{Identifier: acme.Identifier{Type: "dns", Value: "example.test"}, KeyAuthorization: "abc.xyz"}

	if err := s.Present(context.Background(), chal); err != nil {
		t.Fatalf("Present: %v", err)
	}

	b := store.Resolve("example.test")
	if b == nil {
		t.Fatal("expected a bundle to be installed for the challenge domain")
	}

	leaf, err := x509.ParseCertificate(b.Cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	want := sha256.Sum256([]byte(chal.KeyAuthorization))
	found := false
	for _, ext := range leaf.Extensions {
		if ext.Id.Equal(idPeAcmeIdentifierV1) {
			found = true
			if len(ext.Value) < len(want) {
				t.Fatalf("extension value too short: %x", ext.Value)
			}
		}
	}
	if !found {
		t.Fatal("expected the id-pe-acmeIdentifierV1 extension to be present")
	}

	if err := s.CleanUp(context.Background(), chal); err != nil {
		t.Fatalf("CleanUp: %v", err)
	}
	if store.Resolve("example.test") != nil {
		t.Fatal("expected the challenge certificate to be removed after cleanup")
	}
}

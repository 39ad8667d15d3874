package challenge

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/mholt/acmez/v3/acme"

	"github.com/ferronweb/ferron/internal/tlsresolver"
)

// idPeAcmeIdentifierV1 is the id-pe-acmeIdentifier OID RFC 8737 §3 defines
// for the TLS-ALPN-01 challenge certificate extension.
var idPeAcmeIdentifierV1 = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

// TLSALPN01Solver attaches a synthetic, self-signed certificate carrying
// the SHA-256 digest of the key authorization as a critical extension,
// into store, for the duration of the challenge; CleanUp removes it.
type TLSALPN01Solver struct {
	store *tlsresolver.CertStore
}

func NewTLSALPN01Solver(store *tlsresolver.CertStore) *TLSALPN01Solver {
	return &TLSALPN01Solver{store: store}
}

func (s *TLSALPN01Solver) Present(ctx context.Context, chal acme.Challenge) error {
	cert, err := synthesizeChallengeCert(chal.Identifier.Value, chal.KeyAuthorization)
	if err != nil {
		return err
	}
	s.store.Put(chal.Identifier.Value, &tlsresolver.Bundle{Cert: cert})
	return nil
}

func (s *TLSALPN01Solver) Wait(ctx context.Context, chal acme.Challenge) error {
	return nil
}

func (s *TLSALPN01Solver) CleanUp(ctx context.Context, chal acme.Challenge) error {
	s.store.Delete(chal.Identifier.Value)
	return nil
}

// synthesizeChallengeCert builds the self-signed certificate RFC 8737 §3
// specifies: subject CN = domain, a single SAN of domain, and a critical
// id-pe-acmeIdentifierV1 extension holding the DER-encoded OCTET STRING of
// sha256(keyAuthorization).
func synthesizeChallengeCert(domain, keyAuthorization string) (*tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256([]byte(keyAuthorization))
	extValue, err := asn1.Marshal(digest[:])
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		ExtraExtensions: []pkix.Extension{
			{Id: idPeAcmeIdentifierV1, Critical: true, Value: extValue},
		},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}

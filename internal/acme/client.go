package acme

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"net/http"

	"github.com/mholt/acmez/v3"
	"github.com/mholt/acmez/v3/acme"
)

// directoryClient is the only type in this package that makes ACME protocol
// calls through mholt/acmez/v3. Manager still uses acmez's Solver and
// acme.Account types, but order state, renewal scheduling and the disk
// cache work in terms of this package's own Order/diskcache types.
type directoryClient struct {
	directoryURL string
	httpClient   *http.Client
	solvers      map[string]acmez.Solver
}

func newDirectoryClient(directoryURL string, httpClient *http.Client, solvers map[ChallengeType]acmez.Solver) *directoryClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	m := make(map[string]acmez.Solver, len(solvers))
	for k, v := range solvers {
		m[string(k)] = v
	}
	return &directoryClient{directoryURL: directoryURL, httpClient: httpClient, solvers: m}
}

func (c *directoryClient) client() acmez.Client {
	return acmez.Client{
		Client: &acme.Client{
			Directory:  c.directoryURL,
			HTTPClient: c.httpClient,
		},
		ChallengeSolvers: c.solvers,
	}
}

// registerAccount creates (or, with a cached key, re-associates) an
// account on the directory, applying External Account Binding when a
// key-id/HMAC pair is configured.
func (c *directoryClient) registerAccount(ctx context.Context, contact string, key *ecdsa.PrivateKey, eabKeyID, eabHMACKeyB64 string) (acme.Account, error) {
	account := acme.Account{
		Contact:              []string{"mailto:" + contact},
		TermsOfServiceAgreed: true,
		PrivateKey:           key,
	}
	if eabKeyID != "" {
		eab, err := c.client().NewEABAccount(ctx, account, eabKeyID, eabHMACKeyB64)
		if err != nil {
			return acme.Account{}, fmt.Errorf("acme: EAB registration: %w", err)
		}
		return eab, nil
	}
	return c.client().NewAccount(ctx, account)
}

// obtainResult is the material a successful issuance produces, in this
// package's own shape rather than acmez's.
type obtainResult struct {
	CertPEM []byte
	KeyPEM  []byte
}

// obtain runs the full order -> authorize -> solve -> finalize flow for
// domains against account, generating a fresh certificate key and CSR.
func (c *directoryClient) obtain(ctx context.Context, account acme.Account, domains []string) (*obtainResult, error) {
	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	csrDER, err := buildCSR(certKey, domains)
	if err != nil {
		return nil, err
	}
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return nil, err
	}

	certs, err := c.client().ObtainCertificateUsingCSR(ctx, account, csr)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("acme: directory returned no certificates")
	}

	keyPEM, err := marshalECKey(certKey)
	if err != nil {
		return nil, err
	}

	return &obtainResult{CertPEM: certs[0].ChainPEM, KeyPEM: keyPEM}, nil
}

func buildCSR(key *ecdsa.PrivateKey, domains []string) ([]byte, error) {
	tmpl := &x509.CertificateRequest{
		Subject:  pkixCommonName(domains[0]),
		DNSNames: domains,
	}
	return x509.CreateCertificateRequest(rand.Reader, tmpl, key)
}

func marshalECKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func generateAccountKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func accountKeyToPEM(key *ecdsa.PrivateKey) ([]byte, error) { return marshalECKey(key) }

func accountKeyFromPEM(b []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("acme: no PEM block in cached account key")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func pkixCommonName(name string) pkix.Name {
	return pkix.Name{CommonName: name}
}

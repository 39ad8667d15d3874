package acme

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mholt/acmez/v3"
	"github.com/mholt/acmez/v3/acme"

	"github.com/ferronweb/ferron/internal/acme/diskcache"
	"github.com/ferronweb/ferron/internal/logging"
	"github.com/ferronweb/ferron/internal/tlsresolver"
)

var log = logging.Root("acme")

// AccountConfig names one directory/account Manager issues against.
type AccountConfig struct {
	DirectoryURL  string
	Contact       string
	EABKeyID      string
	EABHMACKeyB64 string
}

// Config carries the manager-wide tunables.
type Config struct {
	Account         AccountConfig
	CacheDir        string
	OnDemandEnabled bool
	RenewBefore     time.Duration // not read by the renewal schedule, which renews at 2/3 of lifetime
}

// Manager owns account lifecycle, issuance, and the renewal scheduler. It
// implements tlsresolver.Issuer so the TLS resolver can request on-demand
// issuance through the same path a scheduled renewal uses.
type Manager struct {
	cfg   Config
	cache *diskcache.Store
	store *tlsresolver.CertStore

	solvers map[ChallengeType]acmez.Solver

	acctMu  sync.Mutex // serializes order operations per account
	backoff backoffState

	orderMu sync.Mutex
	orders  map[string]*Order // keyed by DomainSetKey
}

func NewManager(cfg Config, store *tlsresolver.CertStore, solvers map[ChallengeType]acmez.Solver) *Manager {
	return &Manager{
		cfg:     cfg,
		cache:   diskcache.New(cfg.CacheDir),
		store:   store,
		solvers: solvers,
		orders:  map[string]*Order{},
	}
}

// IssueOnDemand implements tlsresolver.Issuer: the first request for an
// unknown SNI blocks here until a bundle is installed or ctx's deadline
// elapses.
func (m *Manager) IssueOnDemand(ctx context.Context, hostname string) error {
	if !m.cfg.OnDemandEnabled {
		return fmt.Errorf("acme: on-demand issuance disabled")
	}
	return m.Obtain(ctx, []string{hostname})
}

// Obtain runs the full issuance flow for domains: account lifecycle,
// order creation, challenge solving, finalization, and publishing the
// resulting bundle into the CertStore and the disk cache. Issuance across
// domain sets is serialized per account.
func (m *Manager) Obtain(ctx context.Context, domains []string) error {
	key := DomainSetKey(domains)

	m.acctMu.Lock()
	defer m.acctMu.Unlock()

	if !m.backoff.ready(time.Now()) {
		return fmt.Errorf("acme: account in backoff until %s", m.backoff.until)
	}

	order := &Order{ID: uuid.NewString(), AccountID: m.cfg.Account.DirectoryURL, Domains: domains, State: StatePending}
	m.setOrder(key, order)
	log.WithField("order_id", order.ID).WithField("domains", domains).Info("acme: order started")

	account, err := m.loadOrRegisterAccount(ctx)
	if err != nil {
		m.failOrder(order, err)
		return err
	}

	order.advance(StateValidating)

	client := newDirectoryClient(m.cfg.Account.DirectoryURL, nil, m.solvers)
	result, err := client.obtain(ctx, account, domains)
	if err != nil {
		m.failOrder(order, err)
		return err
	}

	order.advance(StateFinalizing)

	cert, err := tls.X509KeyPair(result.CertPEM, result.KeyPEM)
	if err != nil {
		m.failOrder(order, err)
		return err
	}

	for _, d := range domains {
		m.store.Put(d, &tlsresolver.Bundle{Cert: &cert})
	}

	bundleFP := diskcache.Fingerprint(key)
	if err := m.cache.SaveBundle(bundleFP, &diskcache.Bundle{
		Domains: domains,
		CertPEM: result.CertPEM,
		KeyPEM:  result.KeyPEM,
	}); err != nil {
		log.WithError(err).Warn("failed to persist issued certificate to disk cache; continuing in-memory")
	}

	order.advance(StateValid)
	order.IssuedAt = time.Now()
	if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
		order.NotAfter = leaf.NotAfter
	}
	m.backoff.reset()
	return nil
}

// loadOrRegisterAccount returns a usable acme.Account, preferring a
// cached one; if the directory denies a cached account (checked lazily,
// on the next failed order) the cache entry is discarded and a fresh
// account is registered on the next call.
func (m *Manager) loadOrRegisterAccount(ctx context.Context) (acme.Account, error) {
	fp := diskcache.Fingerprint(m.cfg.Account.DirectoryURL + "|" + m.cfg.Account.Contact)
	if cached, ok := m.cache.LoadAccount(fp); ok {
		key, err := accountKeyFromPEM(cached.KeyPEM)
		if err == nil {
			return acme.Account{PrivateKey: key, Location: cached.AccountURL}, nil
		}
		log.WithError(err).Warn("cached ACME account key unreadable; recreating account")
	}

	key, err := generateAccountKey()
	if err != nil {
		return acme.Account{}, err
	}

	client := newDirectoryClient(m.cfg.Account.DirectoryURL, nil, m.solvers)
	account, err := client.registerAccount(ctx, m.cfg.Account.Contact, key,
		m.cfg.Account.EABKeyID, m.cfg.Account.EABHMACKeyB64)
	if err != nil {
		return acme.Account{}, err
	}

	keyPEM, err := accountKeyToPEM(key)
	if err != nil {
		return acme.Account{}, err
	}
	if err := m.cache.SaveAccount(fp, &diskcache.Account{
		Directory:  m.cfg.Account.DirectoryURL,
		Contact:    m.cfg.Account.Contact,
		KeyPEM:     keyPEM,
		AccountURL: account.Location,
		EABKeyID:   m.cfg.Account.EABKeyID,
	}); err != nil {
		log.WithError(err).Warn("failed to persist ACME account to disk cache; continuing in-memory")
	}

	return account, nil
}

// discardAccount removes the cached account so the next issuance attempt
// registers a fresh one: if the cache says an account exists but the
// directory denies it, discard and recreate.
func (m *Manager) discardAccount() {
	fp := diskcache.Fingerprint(m.cfg.Account.DirectoryURL + "|" + m.cfg.Account.Contact)
	if err := m.cache.DeleteAccount(fp); err != nil {
		log.WithError(err).Warn("failed to discard stale ACME account cache entry")
	}
}

func (m *Manager) failOrder(order *Order, err error) {
	order.advance(StateInvalid)
	order.LastError = err
	order.Attempts++
	if Retryable(err) {
		m.backoff.recordFailure(time.Now())
	} else if isAccountDenied(err) {
		m.discardAccount()
	}
	log.WithError(err).WithField("domains", order.Domains).Warn("ACME issuance failed")
}

func (m *Manager) setOrder(key string, o *Order) {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()
	m.orders[key] = o
}

// Order returns the most recent order tracked for a domain set, if any.
func (m *Manager) Order(domains []string) (*Order, bool) {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()
	o, ok := m.orders[DomainSetKey(domains)]
	return o, ok
}

func isAccountDenied(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"account does not exist", "accountdoesnotexist", "invalid account"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

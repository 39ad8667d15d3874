// Package acme implements the account lifecycle, certificate issuance
// (HTTP-01, TLS-ALPN-01, DNS-01), renewal scheduling, and on-demand
// issuance gating. The actual ACME protocol exchange is delegated to
// mholt/acmez/v3 (client.go runs the protocol calls; manager.go also imports
// acmez for its solver and account types); everything else here — the order
// state machine, per-account serialization, 2/3-lifetime renewal, and the
// on-disk cache — is this package's own design content.
package acme

import (
	"sort"
	"strings"
	"time"
)

// OrderState is one of the monotonic states an AcmeOrder moves through,
// except Invalid, which is terminal: a new order must be created to retry.
type OrderState int

const (
	StatePending OrderState = iota
	StateValidating
	StateReady
	StateFinalizing
	StateValid
	StateInvalid
)

func (s OrderState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateFinalizing:
		return "finalizing"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ChallengeType names one of the three supported validation methods.
type ChallengeType string

const (
	ChallengeHTTP01    ChallengeType = "http-01"
	ChallengeDNS01     ChallengeType = "dns-01"
	ChallengeTLSALPN01 ChallengeType = "tls-alpn-01"
)

// Order tracks one in-progress or completed issuance.
type Order struct {
	ID            string // opaque identifier, distinct from any CA-assigned order URL
	AccountID     string
	Domains       []string
	ChallengeType ChallengeType
	State         OrderState
	Attempts      int
	LastError     error
	IssuedAt      time.Time
	NotAfter      time.Time
	RenewalID     string // ARI renewal identifier, if the CA supports it
}

// DomainSetKey canonicalizes a domain set into a stable cache key:
// lower-cased, sorted, joined. Two orders for the same domains in any
// argument order collide on the same key.
func DomainSetKey(domains []string) string {
	sorted := make([]string, len(domains))
	for i, d := range domains {
		sorted[i] = strings.ToLower(strings.TrimSpace(d))
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// advance moves the order to next, recording the transition. Callers are
// responsible for only calling this along a valid monotonic path; Invalid
// is accepted from any non-terminal state (issuance can fail at any step).
func (o *Order) advance(next OrderState) {
	o.State = next
}

// Retryable classifies whether a failure at the order's current state
// should re-enter backoff (network errors, rate limiting, DNS propagation
// delays) or abandon the order as terminal (account invalid, domain
// unauthorized).
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	terminalMarkers := []string{"unauthorized", "account does not exist", "accountdoesnotexist", "rejectedidentifier", "invalid account"}
	for _, m := range terminalMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	return true
}

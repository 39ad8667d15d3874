package acme

import (
	"errors"
	"testing"

	"github.com/ferronweb/ferron/internal/tlsresolver"
)

func TestIsAccountDenied(t *testing.T) {
	if !isAccountDenied(errors.New("urn:ietf:params:acme:error:accountDoesNotExist")) {
		t.Fatal("expected accountDoesNotExist to be classified as account-denied")
	}
	if isAccountDenied(errors.New("dial tcp: timeout")) {
		t.Fatal("expected a plain network error to not be classified as account-denied")
	}
}

func TestIssueOnDemandDisabledByDefault(t *testing.T) {
	m := NewManager(Config{OnDemandEnabled: false}, tlsresolver.NewCertStore(), nil)
	if err := m.IssueOnDemand(nil, "example.test"); err == nil {
		t.Fatal("expected on-demand issuance to be rejected when disabled")
	}
}

func TestOrderLookupMissReturnsFalse(t *testing.T) {
	m := NewManager(Config{}, tlsresolver.NewCertStore(), nil)
	if _, ok := m.Order([]string{"example.test"}); ok {
		t.Fatal("expected no order to be tracked before any Obtain call")
	}
}

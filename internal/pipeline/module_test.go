package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ferronweb/ferron/internal/config"
)

func TestRunTerminalChainRejectsConnectWith405(t *testing.T) {
	policy := &config.EffectivePolicy{}
	r := httptest.NewRequest(http.MethodConnect, "backend.internal:443", nil)
	w := httptest.NewRecorder()

	if err := Run(context.Background(), w, r, nil, policy, Sinks{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for CONNECT with no activated forward_proxy module, got %d", w.Code)
	}
}

func TestRunTerminalChainIs404ForOrdinaryMethods(t *testing.T) {
	policy := &config.EffectivePolicy{}
	r := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()

	if err := Run(context.Background(), w, r, nil, policy, Sinks{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unmatched GET, got %d", w.Code)
	}
}

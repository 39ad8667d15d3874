package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ferronweb/ferron/internal/config"
)

func TestHTTPCacheModuleCachesSecondRequest(t *testing.T) {
	m := NewHTTPCacheModule(10, 0)
	var calls int64
	next := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Cache-Control", "max-age=60")
		w.WriteHeader(200)
		w.Write([]byte("payload"))
		return nil
	}
	directive := &config.Directive{Name: "http_cache"}
	policy := &config.EffectivePolicy{}

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		w := httptest.NewRecorder()
		if err := m.Handle(context.Background(), w, r, directive, policy, Sinks{}, next); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if w.Body.String() != "payload" {
			t.Fatalf("unexpected body %q", w.Body.String())
		}
	}
	if calls != 1 {
		t.Fatalf("expected one origin call, got %d", calls)
	}
}

func TestHTTPCacheModuleSkipsNoStore(t *testing.T) {
	m := NewHTTPCacheModule(10, 0)
	var calls int64
	next := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(200)
		w.Write([]byte("payload"))
		return nil
	}
	directive := &config.Directive{Name: "http_cache"}
	policy := &config.EffectivePolicy{}

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		w := httptest.NewRecorder()
		if err := m.Handle(context.Background(), w, r, directive, policy, Sinks{}, next); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected no-store response to bypass cache on every request, got %d calls", calls)
	}
}

func TestHTTPCacheModuleBypassesCacheIgnorePrefix(t *testing.T) {
	m := NewHTTPCacheModule(10, 0)
	var calls int64
	next := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Cache-Control", "max-age=60")
		w.WriteHeader(200)
		w.Write([]byte("payload"))
		return nil
	}
	directive := &config.Directive{Name: "http_cache"}
	policy := &config.EffectivePolicy{
		Directives: config.DirectiveSet{
			"cache_ignore": {Name: "cache_ignore", Args: []string{"/admin"}},
		},
	}

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
		w := httptest.NewRecorder()
		if err := m.Handle(context.Background(), w, r, directive, policy, Sinks{}, next); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected cache_ignore path to bypass the cache on every request, got %d calls", calls)
	}
}

func TestHTTPCacheModulePassesThroughNonGet(t *testing.T) {
	m := NewHTTPCacheModule(10, 0)
	var called bool
	next := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		called = true
		return nil
	}
	directive := &config.Directive{Name: "http_cache"}
	policy := &config.EffectivePolicy{}
	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	w := httptest.NewRecorder()
	if err := m.Handle(context.Background(), w, r, directive, policy, Sinks{}, next); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !called {
		t.Fatal("expected POST requests to bypass the cache")
	}
}

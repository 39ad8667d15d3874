package proxy

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBackendURLAndDialAddrVariants(t *testing.T) {
	cases := []struct {
		name     string
		address  string
		wantNet  string
		wantH2C  bool
		wantHost string
		wantDial string
	}{
		{"plain", "backend1:8080", "tcp", false, "backend1:8080", "backend1:8080"},
		{"unix", "unix:///run/app.sock", "unix", false, "unix", "/run/app.sock"},
		{"h2c", "h2c://backend2:9000", "tcp", true, "backend2:9000", "backend2:9000"},
		{"explicit http", "http://backend3:8080", "tcp", false, "backend3:8080", "backend3:8080"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := &Backend{Address: c.address}
			u, kind, err := backendURL(b)
			if err != nil {
				t.Fatalf("backendURL: %v", err)
			}
			if kind.network != c.wantNet || kind.h2c != c.wantH2C {
				t.Fatalf("kind = %+v, want network=%s h2c=%v", kind, c.wantNet, c.wantH2C)
			}
			if u.Host != c.wantHost {
				t.Fatalf("host = %q, want %q", u.Host, c.wantHost)
			}
			if got := dialAddr(b); got != c.wantDial {
				t.Fatalf("dialAddr = %q, want %q", got, c.wantDial)
			}
		})
	}
}

func TestClassifyErrorConnectVsTimeout(t *testing.T) {
	if classifyError(nil) != ErrorNone {
		t.Fatal("expected ErrorNone for a nil error")
	}
	_, err := net.DialTimeout("tcp", "127.0.0.1:1", time.Millisecond)
	if err == nil {
		t.Fatal("expected dial to an unused low port to fail")
	}
	if class := classifyError(err); class != ErrorConnect && class != ErrorTimeout {
		t.Fatalf("expected a connect or timeout classification, got %v", class)
	}
}

// TestEngineRetriesAnotherBackendAfterConnectFailure exercises the full
// dial path (Pool.AcquireIdle/Release via poolDial/poolConn, not just the
// Pool type's methods in isolation) and the lb_retry_connection retry.
func TestEngineRetriesAnotherBackendAfterConnectFailure(t *testing.T) {
	lnA, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addrA := lnA.Addr().String()
	lnA.Close() // nothing listens here now; dialing it refuses

	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}))
	defer srvB.Close()

	a := &Backend{Address: addrA}
	b := &Backend{Address: srvB.Listener.Addr().String()}
	group := NewUpstreamGroup(GroupConfig{Algorithm: AlgorithmRoundRobin, RetryConnection: true}, []*Backend{a, b})
	engine := &Engine{Group: group}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry against the healthy backend to succeed, got status %d body %q", rec.Code, rec.Body.String())
	}
}

func TestEngineDoesNotRetryWhenRetryConnectionDisabled(t *testing.T) {
	lnA, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addrA := lnA.Addr().String()
	lnA.Close()

	a := &Backend{Address: addrA}
	group := NewUpstreamGroup(GroupConfig{Algorithm: AlgorithmRoundRobin, RetryConnection: false}, []*Backend{a})
	engine := &Engine{Group: group}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 without a retry, got %d", rec.Code)
	}
}

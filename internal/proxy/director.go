package proxy

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/ferronweb/ferron/internal/logging"
	"github.com/ferronweb/ferron/internal/protocol"
)

var log = logging.Root("proxy")

// Engine drives one UpstreamGroup's request forwarding: backend selection,
// retry-before-first-byte, and the HTTP semantics spec.md §4.7 calls out
// (hop-by-hop stripping, X-Forwarded-*, WebSocket Upgrade passthrough,
// unix-domain and h2c backends). It wraps net/http/httputil.ReverseProxy,
// the idiomatic Go forwarding primitive, rather than reimplementing HTTP
// relaying by hand — the director callback, selection/health/pool logic,
// and retry loop above it are what spec.md's engine actually asks for.
type Engine struct {
	Group             *UpstreamGroup
	TrustForwardedFor bool
	InterceptErrors   bool
}

// ErrorClass classifies a forwarding failure for status-code mapping per
// spec.md §4.7's Failure reporting paragraph.
type ErrorClass int

const (
	ErrorNone ErrorClass = iota
	ErrorConnect               // -> 502, retryable against another backend
	ErrorTimeout               // -> 504
	ErrorUpstream5xx           // passed through; Engine does not read InterceptErrors
)

// roundTripCloser is the subset of *http.Transport / *http2.Transport this
// engine needs: round-trip, plus the ability to force pooled connections
// back through poolConn.Close (and so back into the Pool) once a request
// completes, instead of waiting for the transport's own idle timeout.
type roundTripCloser interface {
	http.RoundTripper
	CloseIdleConnections()
}

// ServeHTTP selects a backend, forwards the request, and releases the
// backend slot. On a TCP-connect or TLS-handshake failure (the only stage
// at which no request bytes have reached the wire), it retries against a
// different backend when lb_retry_connection is enabled, per spec.md
// §4.7's Retry paragraph; any other failure is reported directly.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tried := map[string]bool{}

	for {
		backend, err := e.selectBackend(start, tried)
		if err != nil {
			if err == ErrConcurrencyCapReached {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			} else {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			}
			return
		}
		tried[backend.Address] = true

		fwdErr := e.forward(w, r, backend, start)
		e.Group.Release(backend)
		if fwdErr == nil {
			return
		}
		backend.RecordResult(false, e.Group.cfg.MaxFails, e.Group.cfg.HealthCheckWindow, start)

		retry := e.Group.cfg.RetryConnection &&
			classifyError(fwdErr) == ErrorConnect &&
			len(tried) < len(e.Group.Backends())
		if retry {
			log.WithError(fwdErr).WithField("backend", backend.Address).Warn("retrying against another backend after connect failure")
			continue
		}

		e.writeForwardError(w, backend, fwdErr)
		return
	}
}

// selectBackend wraps UpstreamGroup.Select for the first attempt, and
// SelectExcluding for any lb_retry_connection retry within this request.
func (e *Engine) selectBackend(now time.Time, tried map[string]bool) (*Backend, error) {
	if len(tried) == 0 {
		return e.Group.Select(now)
	}
	return e.Group.SelectExcluding(now, tried)
}

// forward dials and forwards exactly one attempt against backend. It never
// writes an error response to w itself: the caller decides whether to
// retry or report the failure. This is safe because the only errors
// RoundTrip can surface before any request bytes are written are connect
// and TLS-handshake failures — ReverseProxy's ErrorHandler here simply
// records the error instead of invoking its default 502 write.
func (e *Engine) forward(w http.ResponseWriter, r *http.Request, backend *Backend, start time.Time) error {
	target, kind, err := backendURL(backend)
	if err != nil {
		return err
	}

	isUpgrade := r.Header.Get("Upgrade") != ""

	var fwdErr error
	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			e.direct(req, target, isUpgrade)
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode != http.StatusSwitchingProtocols {
				protocol.StripHopByHop(resp.Header)
			}
			return nil
		},
		ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, err error) {
			fwdErr = err
		},
	}

	transport := e.transportFor(backend, kind, isUpgrade)
	rp.Transport = transport
	rp.ServeHTTP(w, r)
	transport.CloseIdleConnections()

	if fwdErr != nil {
		return fwdErr
	}
	backend.RecordResult(true, e.Group.cfg.MaxFails, e.Group.cfg.HealthCheckWindow, start)
	return nil
}

// transportFor picks the RoundTripper for one forwarding attempt: a
// one-shot, non-pooled transport for hijacked Upgrade tunnels (disabling
// HTTP/2 toward the backend, per spec.md §4.7), an h2c (cleartext HTTP/2)
// transport for backends declared with the h2c:// prefix, and a
// Pool-backed *http.Transport otherwise.
func (e *Engine) transportFor(backend *Backend, kind backendKind, isUpgrade bool) roundTripCloser {
	if isUpgrade {
		return &http.Transport{
			ForceAttemptHTTP2: false,
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialRaw(ctx, kind.network, dialAddr(backend))
			},
		}
	}
	if kind.h2c {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, _ string, _ string, _ *tls.Config) (net.Conn, error) {
				return e.poolDial(ctx, backend, kind)
			},
		}
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return e.poolDial(ctx, backend, kind)
		},
	}
}

// poolDial services a backend dial through the generation-tagged Pool: an
// idle, same-generation connection is reused if one is available,
// otherwise a fresh connection is dialed and wrapped so that returning it
// later (via Close, whether called explicitly or by the transport's own
// idle-eviction) hands it back to the Pool instead of tearing it down.
func (e *Engine) poolDial(ctx context.Context, backend *Backend, kind backendKind) (net.Conn, error) {
	pool := e.Group.Pool()
	if entry := pool.AcquireIdle(backend); entry != nil {
		return &poolConn{Conn: entry.Conn, entry: entry, pool: pool}, nil
	}

	conn, err := dialRaw(ctx, kind.network, dialAddr(backend))
	if err != nil {
		return nil, err
	}
	entry := &PoolEntry{Conn: conn, Backend: backend, Generation: backend.Generation()}
	return &poolConn{Conn: conn, entry: entry, pool: pool}, nil
}

func dialRaw(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

func (e *Engine) direct(req *http.Request, target *url.URL, isUpgrade bool) {
	origHost := req.Host
	upgrade := req.Header.Get("Upgrade")
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	req.Host = target.Host

	protocol.StripHopByHop(req.Header)

	clientIP, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		clientIP = req.RemoteAddr
	}

	if e.TrustForwardedFor {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
	}
	req.Header.Set("X-Forwarded-For", clientIP)

	proto := "http"
	if req.TLS != nil {
		proto = "https"
	}
	req.Header.Set("X-Forwarded-Proto", proto)
	req.Header.Set("X-Forwarded-Host", origHost)

	if isUpgrade {
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", upgrade)
	}
}

func (e *Engine) writeForwardError(w http.ResponseWriter, backend *Backend, err error) {
	if classifyError(err) == ErrorTimeout {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	} else {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	log.WithError(err).WithField("backend", backend.Address).Warn("upstream forwarding failed")
}

func classifyError(err error) ErrorClass {
	if err == nil {
		return ErrorNone
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return ErrorTimeout
	}
	// context.DeadlineExceeded surfaces through http.Transport on canceled
	// forwards wrapped as a *url.Error; treat it the same as a transport
	// timeout rather than a hard connect failure.
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return ErrorTimeout
	}
	return ErrorConnect
}

// backendKind describes how a Backend's address should be dialed: the
// network ("tcp" or "unix"), and whether it speaks cleartext HTTP/2 (h2c).
type backendKind struct {
	network string
	h2c     bool
}

// backendURL derives the outbound request URL (for Director rewriting and
// the Host header) and the dial kind for a backend's address. spec.md
// §4.7 requires unix-domain and HTTP/2-only cleartext backends to be
// expressible via the backend URL/flag: `unix:///path.sock` and
// `h2c://host:port` alongside plain `host:port`/`http(s)://` forms.
func backendURL(b *Backend) (*url.URL, backendKind, error) {
	switch {
	case strings.HasPrefix(b.Address, "unix://"):
		return &url.URL{Scheme: "http", Host: "unix"}, backendKind{network: "unix"}, nil
	case strings.HasPrefix(b.Address, "h2c://"):
		host := strings.TrimPrefix(b.Address, "h2c://")
		return &url.URL{Scheme: "http", Host: host}, backendKind{network: "tcp", h2c: true}, nil
	case strings.Contains(b.Address, "://"):
		u, err := url.Parse(b.Address)
		if err != nil {
			return nil, backendKind{}, err
		}
		return u, backendKind{network: "tcp"}, nil
	default:
		return &url.URL{Scheme: "http", Host: b.Address}, backendKind{network: "tcp"}, nil
	}
}

// dialAddr returns the literal address to dial for b: the unix socket path
// for unix:// backends, the bare host:port for h2c:// and plain backends,
// or the parsed host:port for any other scheme'd URL.
func dialAddr(b *Backend) string {
	switch {
	case strings.HasPrefix(b.Address, "unix://"):
		return strings.TrimPrefix(b.Address, "unix://")
	case strings.HasPrefix(b.Address, "h2c://"):
		return strings.TrimPrefix(b.Address, "h2c://")
	case strings.Contains(b.Address, "://"):
		if u, err := url.Parse(b.Address); err == nil {
			return u.Host
		}
		return b.Address
	default:
		return b.Address
	}
}

// Package http1 configures a net/http.Server for HTTP/1.x connections:
// request parsing timeouts, keep-alive, and per-peer connection reuse are
// all net/http built-ins this package surfaces, not reimplements.
package http1

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Config is the set of HTTP/1 timeout/keep-alive knobs a server exposes.
type Config struct {
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	RequestTimeout    time.Duration
	DisableKeepAlive  bool
}

// NewServer builds an *http.Server bound to handler, configured per cfg. It
// deliberately leaves Addr and TLSConfig unset: internal/listener owns the
// accept loop and hands this server already-accepted connections via
// Serve(listener), so Ferron's PROXY-protocol unwrapping happens before
// net/http ever sees a net.Conn.
func NewServer(handler http.Handler, cfg Config) *http.Server {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext: func(l net.Listener) context.Context {
			return context.Background()
		},
	}
	if cfg.DisableKeepAlive {
		srv.SetKeepAlivesEnabled(false)
	}
	return srv
}

// ServeConn serves a single already-accepted (and possibly already-TLS)
// connection by wrapping it in a one-shot net.Listener, since net/http has
// no public "serve one conn" entry point.
func ServeConn(srv *http.Server, conn net.Conn) {
	srv.Serve(&singleConnListener{conn: conn})
}

type singleConnListener struct {
	conn net.Conn
	done bool
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	if l.done {
		return nil, errClosed
	}
	l.done = true
	return l.conn, nil
}

func (l *singleConnListener) Close() error   { return nil }
func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

var errClosed = &net.OpError{Op: "accept", Err: net.ErrClosed}

// IsTLS reports whether conn has already completed (or is mid-) a TLS
// handshake, used by the dispatcher to decide whether ALPN selected h2.
func IsTLS(conn net.Conn) bool {
	_, ok := conn.(*tls.Conn)
	return ok
}

// Package listener implements per-Endpoint accept loops: TCP and TLS
// listeners, an optional UDP/QUIC listener, and PROXY-protocol v1/v2
// prefix parsing. The Start/Stop/two-phase-shutdown shape runs
// ListenAndServe in a goroutine, shuts down with a bounded drain
// deadline, and treats http.ErrServerClosed and context-cancellation as a
// clean stop rather than an error.
package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ferronweb/ferron/internal/logging"
)

var log = logging.Root("listener")

// ProxyProtocolMode configures PROXY-protocol acceptance for an Endpoint.
type ProxyProtocolMode int

const (
	ProxyProtocolOff ProxyProtocolMode = iota
	ProxyProtocolOptional
	ProxyProtocolRequired
)

// Endpoint is one configured listen address: plain TCP or TLS, with an
// optional PROXY-protocol prefix.
type Endpoint struct {
	Name      string
	Address   string
	TLSConfig *tls.Config // nil for plain TCP
	ProxyMode ProxyProtocolMode

	// DrainTimeout bounds phase 2 of shutdown: active connections are given
	// this long to finish before being forcibly closed.
	DrainTimeout time.Duration

	mu      sync.Mutex
	ln      net.Listener
	ready   bool
	closing chan struct{}
}

// Handler processes one accepted, PROXY-protocol-unwrapped connection. It
// owns the connection's full lifetime and must close it before returning.
type Handler func(ctx context.Context, conn net.Conn)

// Listen binds the Endpoint's address with SO_REUSEADDR (and SO_REUSEPORT
// where supported) so a restart can rebind before the prior process's
// sockets have fully closed, avoiding EADDRINUSE after restart.
func (e *Endpoint) Listen() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(context.Background(), "tcp", e.Address)
	if err != nil {
		return err
	}
	if e.TLSConfig != nil {
		ln = tls.NewListener(ln, e.TLSConfig)
	}
	e.ln = ln
	e.ready = true
	e.closing = make(chan struct{})
	return nil
}

// Ready reports whether Listen has succeeded and Close hasn't been called.
func (e *Endpoint) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Serve runs the accept loop, dispatching every accepted (and
// PROXY-protocol-unwrapped) connection to h, until ctx is canceled or Close
// is called. It returns nil on a clean shutdown.
func (e *Endpoint) Serve(ctx context.Context, h Handler) error {
	e.mu.Lock()
	ln := e.ln
	e.mu.Unlock()
	if ln == nil {
		return errors.New("listener: Serve called before Listen")
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		select {
		case <-ctx.Done():
		case <-e.closing:
		}
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-e.closing:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("accept failed")
			continue
		}

		wrapped, perr := wrapProxyProtocol(conn, e.ProxyMode)
		if perr != nil {
			log.WithError(perr).Warn("rejecting connection: PROXY protocol required but absent/invalid")
			conn.Close()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			h(ctx, wrapped)
		}()
	}
}

// Close implements the Endpoint side of phase 1 of spec.md §4.1's two-phase
// shutdown: stop accepting new connections. Callers drain in-flight
// connections themselves (Serve's WaitGroup) up to DrainTimeout before a
// forced close.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil
	}
	e.ready = false
	close(e.closing)
	if e.ln != nil {
		return e.ln.Close()
	}
	return nil
}

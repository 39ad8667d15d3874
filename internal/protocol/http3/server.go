// Package http3 wires quic-go's http3 server into the same http.Handler
// every other protocol layer terminates into, as an experimental transport.
// Nothing on this path strips hop-by-hop headers from responses; the parent
// protocol package's StripHopByHop is called only by the reverse-proxy
// engine.
package http3

import (
	"net/http"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// Config is the HTTP/3 surface: a QUIC idle timeout and an Enabled flag.
// The HTTP/2 stream and frame-size limits have no counterpart here.
type Config struct {
	MaxIdleTimeoutSeconds int64
	Enabled               bool
}

// NewServer builds an http3.Server bound to handler and addr. Advertising
// it is the caller's job (an Alt-Svc header on the TLS/1-or-2 response, or
// a bare QUIC listener at the same port) since that policy belongs to the
// TLS/ALPN resolver, not the protocol server itself.
func NewServer(addr string, handler http.Handler, cfg Config) *http3.Server {
	qconf := &quic.Config{}
	if cfg.MaxIdleTimeoutSeconds > 0 {
		qconf.MaxIdleTimeout = secondsToDuration(cfg.MaxIdleTimeoutSeconds)
	}
	return &http3.Server{
		Addr:       addr,
		Handler:    handler,
		QUICConfig: qconf,
	}
}

// AltSvcHeader returns the Alt-Svc header value advertising HTTP/3 on port,
// for the HTTP/1 and HTTP/2 response paths to surface so capable clients
// can upgrade.
func AltSvcHeader(port int) string {
	return altSvcValue(port)
}

package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ferronweb/ferron/internal/protocol/http1"
	"github.com/ferronweb/ferron/internal/protocol/http2"
)

// newConnHandler builds the listener.Handler every Endpoint's accept loop
// dispatches into: one shared *http.Server, HTTP/2-configured, serving each
// already-accepted (and possibly already-TLS) connection via http1.ServeConn,
// which is how golang.org/x/net/http2 rides along automatically once a TLS
// peer negotiates "h2" over ALPN, per internal/protocol/http2's design.
func newConnHandler(h http.Handler) func(ctx context.Context, conn net.Conn) {
	srv := http1.NewServer(h, http1.Config{
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	})
	if err := http2.Configure(srv, http2.Config{
		MaxConcurrentStreams: 250,
		MaxReadFrameSize:     1 << 20,
		ExtendedConnect:      true,
	}); err != nil {
		log.WithError(err).Warn("failed to configure HTTP/2; connections will be served as HTTP/1.1 only")
	}

	return func(ctx context.Context, conn net.Conn) {
		http1.ServeConn(srv, conn)
	}
}

package pipeline

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ferronweb/ferron/internal/config"
)

// ForwardProxyModule implements CONNECT tunneling, per SPEC_FULL.md's
// forward-proxy supplement: dial the requested host:port directly
// (bypassing the rest of the pipeline for the tunnel body), write a
// "200 Connection Established" status line, then splice bytes
// bidirectionally until either side closes or the request is canceled.
// Only reachable when a host block declares the `forward_proxy` directive;
// any other method passing through reaches here only via CONNECT, so no
// extra method check is needed beyond the http.MethodConnect guard.
type ForwardProxyModule struct {
	DialTimeout time.Duration
}

func NewForwardProxyModule() *ForwardProxyModule {
	return &ForwardProxyModule{DialTimeout: 10 * time.Second}
}

func (m *ForwardProxyModule) Name() string { return "forward_proxy" }

func (m *ForwardProxyModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if r.Method != http.MethodConnect {
		return next(ctx, w, r)
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "connect not supported", http.StatusNotImplemented)
		return nil
	}

	dialer := net.Dialer{Timeout: m.DialTimeout}
	upstream, err := dialer.DialContext(ctx, "tcp", r.Host)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}

	clientConn, _, err := hj.Hijack()
	if err != nil {
		upstream.Close()
		return err
	}

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		clientConn.Close()
		upstream.Close()
		return nil
	}

	splice(ctx, clientConn, upstream)
	return nil
}

// splice copies bytes in both directions until either side closes or ctx is
// canceled (client disconnect, shutdown), then closes both.
func splice(ctx context.Context, a, b net.Conn) {
	done := make(chan struct{}, 2)
	cp := func(dst, src net.Conn) {
		io.Copy(dst, src)
		done <- struct{}{}
	}
	go cp(a, b)
	go cp(b, a)

	select {
	case <-done:
	case <-ctx.Done():
	}
	a.Close()
	b.Close()
}

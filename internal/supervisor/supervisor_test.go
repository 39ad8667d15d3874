package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/listener"
)

func noopHandler(ctx context.Context, conn net.Conn) { conn.Close() }

func TestRebindEndpointsAddsAndDrainsByAddress(t *testing.T) {
	addr1 := "127.0.0.1:0"
	callCount := 0

	s := New("unused.kdl", "kdl", func(snap *config.Snapshot, opts config.ServerOptions) []*listener.Endpoint {
		callCount++
		if callCount == 1 {
			return []*listener.Endpoint{{Name: "a", Address: addr1}}
		}
		return nil // second reload drops every endpoint
	}, noopHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.rebindEndpoints(ctx, nil, config.ServerOptions{})
	s.mu.Lock()
	if len(s.endpoints) != 1 {
		s.mu.Unlock()
		t.Fatalf("expected 1 endpoint after first rebind, got %d", len(s.endpoints))
	}
	var bound *listener.Endpoint
	for _, ep := range s.endpoints {
		bound = ep
	}
	s.mu.Unlock()

	if !bound.Ready() {
		t.Fatal("expected the bound endpoint to be Ready")
	}

	s.rebindEndpoints(ctx, nil, config.ServerOptions{})
	time.Sleep(10 * time.Millisecond) // let the async Close observe

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.endpoints) != 0 {
		t.Fatalf("expected all endpoints dropped after second rebind, got %d", len(s.endpoints))
	}
	if bound.Ready() {
		t.Fatal("expected the obsolete endpoint to have been closed")
	}
}

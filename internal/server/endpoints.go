package server

import (
	"crypto/tls"

	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/listener"
	"github.com/ferronweb/ferron/internal/tlsconfig"
	"github.com/ferronweb/ferron/internal/tlsresolver"
)

// portPlan is one distinct bind port a configuration implies, with whether
// any host bound to it wants TLS.
type portPlan struct {
	port string
	tls  bool
}

// derivePorts walks every declared HostKey and folds them into the distinct
// ports a process must bind. The config grammar has no separate "listen"
// directive; a host's port is expressed directly on its HostKey, and a
// host opts a port into TLS by declaring a `tls` or `acme` directive in
// its block. A port requested both with and without TLS by different hosts
// is bound once, TLS-enabled, since a single net.Listener can't straddle
// both.
func derivePorts(doc *config.Document) []portPlan {
	byPort := map[string]*portPlan{}
	order := make([]string, 0, 4)

	for _, hb := range doc.HostBlocks {
		wantsTLS := hostWantsTLS(hb)
		for _, k := range hb.Keys {
			port := k.Port
			if port == "" {
				if wantsTLS {
					port = "443"
				} else {
					port = "80"
				}
			}
			p, ok := byPort[port]
			if !ok {
				p = &portPlan{port: port}
				byPort[port] = p
				order = append(order, port)
			}
			if wantsTLS {
				p.tls = true
			}
		}
	}

	out := make([]portPlan, 0, len(order))
	for _, port := range order {
		out = append(out, *byPort[port])
	}
	return out
}

func hostWantsTLS(hb *config.HostBlock) bool {
	if _, ok := hb.Directives["tls"]; ok {
		return true
	}
	if _, ok := hb.Directives["acme"]; ok {
		return true
	}
	return false
}

// buildEndpoints is the supervisor.EndpointBuilder: one listener.Endpoint
// per distinct port implied by the published snapshot, TLS-terminated via
// resolver when the port carries any TLS host.
func (s *Server) buildEndpoints(snap *config.Snapshot, opts config.ServerOptions) []*listener.Endpoint {
	if snap == nil {
		return nil
	}

	policy, err := tlsconfig.ParsePolicy(opts.TLSMinVersion, opts.TLSMaxVersion, opts.TLSCiphers, opts.TLSCurves)
	if err != nil {
		log.WithError(err).Warn("ignoring invalid tls_min_version/tls_max_version/tls_ciphers/tls_curves directive")
		policy = tlsconfig.Policy{}
	}

	plans := derivePorts(snap.Document)
	out := make([]*listener.Endpoint, 0, len(plans))
	for _, p := range plans {
		ep := &listener.Endpoint{
			Name:         "port-" + p.port,
			Address:      "0.0.0.0:" + p.port,
			DrainTimeout: opts.DrainTimeout,
		}
		if p.tls {
			cfg := &tls.Config{
				GetCertificate: s.resolver.GetCertificate,
				NextProtos:     append([]string{"h2", "http/1.1"}, tlsresolver.ACMETLS1Protocol),
			}
			policy.Apply(cfg)
			ep.TLSConfig = cfg
		}
		out = append(out, ep)
	}
	return out
}

package pipeline

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/proxy"
)

// ReverseProxyModule delegates to internal/proxy.Engine. The
// `reverse_proxy` directive's args are the backend addresses
// (`reverse_proxy backend1:8080 h2c://backend2:9000 unix:///run/app.sock`);
// sibling directives in the same scope (lb_algorithm, lb_max_fails,
// lb_retry_connection, proxy_intercept_errors, trust_forwarded_headers)
// tune the group; the passive health window is the server-wide
// LBHealthCheckWindow option. One UpstreamGroup is built per activating Directive and
// cached for the life of that config snapshot, so health/in-flight state
// survives across requests instead of resetting per call.
type ReverseProxyModule struct {
	opts config.ServerOptions

	mu     sync.Mutex
	groups map[*config.Directive]*proxy.Engine
}

func NewReverseProxyModule(opts config.ServerOptions) *ReverseProxyModule {
	return &ReverseProxyModule{opts: opts, groups: map[*config.Directive]*proxy.Engine{}}
}

func (m *ReverseProxyModule) Name() string { return "reverse_proxy" }

func (m *ReverseProxyModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if len(directive.Args) == 0 {
		return next(ctx, w, r)
	}

	engine := m.engineFor(directive, policy)
	engine.ServeHTTP(w, r)
	return nil
}

func (m *ReverseProxyModule) engineFor(directive *config.Directive, policy *config.EffectivePolicy) *proxy.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.groups[directive]; ok {
		return e
	}

	backends := make([]*proxy.Backend, 0, len(directive.Args))
	for _, addr := range directive.Args {
		backends = append(backends, &proxy.Backend{Address: addr, Weight: 1})
	}

	cfg := proxy.GroupConfig{
		Algorithm:         algorithmFromPolicy(policy),
		MaxFails:          intDirective(policy, "lb_max_fails", m.opts.LBMaxFails),
		HealthCheckWindow: m.opts.LBHealthCheckWindow,
		RetryConnection:   hasDirective(policy, "lb_retry_connection"),
	}
	group := proxy.NewUpstreamGroup(cfg, backends)

	engine := &proxy.Engine{
		Group:             group,
		TrustForwardedFor: hasDirective(policy, "trust_forwarded_headers"),
		InterceptErrors:   hasDirective(policy, "proxy_intercept_errors"),
	}
	m.groups[directive] = engine
	return engine
}

func algorithmFromPolicy(policy *config.EffectivePolicy) proxy.Algorithm {
	d, ok := policy.Get("lb_algorithm")
	if !ok || len(d.Args) == 0 {
		return proxy.AlgorithmP2C
	}
	switch d.Args[0] {
	case "random":
		return proxy.AlgorithmRandom
	case "round_robin":
		return proxy.AlgorithmRoundRobin
	case "least_conn":
		return proxy.AlgorithmLeastConn
	default:
		return proxy.AlgorithmP2C
	}
}

func intDirective(policy *config.EffectivePolicy, name string, fallback int) int {
	d, ok := policy.Get(name)
	if !ok || len(d.Args) == 0 {
		return fallback
	}
	v, err := strconv.Atoi(d.Args[0])
	if err != nil {
		return fallback
	}
	return v
}

func hasDirective(policy *config.EffectivePolicy, name string) bool {
	_, ok := policy.Get(name)
	return ok
}

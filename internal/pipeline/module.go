// Package pipeline implements the ordered module chain: each module may
// produce a terminal response, pass through to the next module, or error;
// the produced response then flows back through response-phase modules in
// reverse order. The contract is expressed as a plain Go interface over
// *http.Request/http.ResponseWriter — the same canonical abstraction
// internal/protocol surfaces — rather than a custom request/response
// struct, building thin interfaces over stdlib types instead of parallel
// ones.
package pipeline

import (
	"context"
	"net/http"

	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/logging"
)

var log = logging.Root("pipeline")

// Sinks are the only side-effect channels a Module may use: logging and
// metric increments only via passed-in sinks.
type Sinks struct {
	Log     logging.Logger
	Metrics MetricsSink
}

// MetricsSink is the minimal counter/gauge surface modules need; the
// concrete implementation lives in internal/metrics and wraps
// prometheus/client_golang.
type MetricsSink interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Next invokes the remainder of the chain.
type Next func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Module is one pipeline stage. Directive is the resolved directive that
// activated this module (BuildModuleActivations already matched module
// name -> directive); Policy is the full effective policy in case a module
// needs sibling directives (e.g. forward_proxy needing rate_limit state).
type Module interface {
	// Name returns the canonical module name (matches config.ModuleActivation.Name).
	Name() string

	// Handle runs this stage. Calling next continues the chain; returning
	// without calling next (after writing a response) terminates the
	// request phase.
	Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error
}

// Factory builds a Module instance; modules are typically stateless
// adapters over shared state (e.g. the rate limiter registry, the cache),
// so Factory is given that shared state via closures at registration time
// rather than through this signature.
type Factory func() Module

// Registry maps a canonical module name to its Factory. The canonical
// pipeline order itself lives in internal/config (policy.go's
// canonicalModuleOrder); this registry only supplies the implementation.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry { return &Registry{factories: map[string]Factory{}} }

func (r *Registry) Register(name string, f Factory) { r.factories[name] = f }

func (r *Registry) Build(name string) (Module, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Chain resolves policy.Modules through reg into an ordered list of Module
// instances paired with their activating Directive, ready to be run via Run.
func Chain(policy *config.EffectivePolicy, reg *Registry) []ActiveModule {
	out := make([]ActiveModule, 0, len(policy.Modules))
	for _, act := range policy.Modules {
		m, ok := reg.Build(act.Name)
		if !ok {
			log.WithField("module", act.Name).Warn("no implementation registered for activated module")
			continue
		}
		out = append(out, ActiveModule{Module: m, Directive: act.Directive})
	}
	return out
}

// ActiveModule pairs a built Module with the directive that activated it.
type ActiveModule struct {
	Module    Module
	Directive *config.Directive
}

// Run drives the chain in order, each module's next closure invoking the
// following one; the last module's next is a terminal 404, since reaching
// the end of the chain with nothing having written a response means no
// module claimed the request, and a silently hung connection would leak
// the request's resources rather than releasing them.
func Run(ctx context.Context, w http.ResponseWriter, r *http.Request, chain []ActiveModule, policy *config.EffectivePolicy, sinks Sinks) error {
	var run func(i int) Next
	run = func(i int) Next {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if i >= len(chain) {
				if r.Method == http.MethodConnect {
					// CONNECT only reaches here when no host block in scope
					// declared forward_proxy, so ForwardProxyModule was never
					// activated into the chain; SPEC_FULL.md §4.6 rejects it
					// with 405 rather than falling through to a bare 404.
					http.Error(w, "CONNECT not supported on this host", http.StatusMethodNotAllowed)
					return nil
				}
				http.NotFound(w, r)
				return nil
			}
			am := chain[i]
			return am.Module.Handle(ctx, w, r, am.Directive, policy, sinks, run(i+1))
		}
	}
	return run(0)(ctx, w, r)
}

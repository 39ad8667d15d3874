package pipeline

import (
	"testing"

	"github.com/ferronweb/ferron/internal/config"
)

func TestEngineForCachesPerDirective(t *testing.T) {
	m := NewReverseProxyModule(config.DefaultServerOptions())
	directive := &config.Directive{Name: "reverse_proxy", Args: []string{"10.0.0.1:8080", "10.0.0.2:8080"}}
	policy := &config.EffectivePolicy{Directives: config.DirectiveSet{}}

	e1 := m.engineFor(directive, policy)
	e2 := m.engineFor(directive, policy)
	if e1 != e2 {
		t.Fatal("expected the same Engine instance to be reused for the same directive")
	}
	if got := len(e1.Group.Backends()); got != 2 {
		t.Fatalf("expected 2 backends, got %d", got)
	}
}

func TestAlgorithmFromPolicyDefaultsToP2C(t *testing.T) {
	policy := &config.EffectivePolicy{Directives: config.DirectiveSet{}}
	if got := algorithmFromPolicy(policy); got != 0 {
		t.Fatalf("expected AlgorithmP2C (0) as default, got %v", got)
	}
}

package config

// ModuleActivation is one entry of the fixed-order module pipeline that the
// matcher hands to internal/pipeline. Ordering is dictated by
// canonicalModuleOrder, never by the directive's declaration order in the
// source file: ordering is fixed by the policy, not by registration.
type ModuleActivation struct {
	Name       string
	Directive  *Directive
}

// canonicalModuleOrder is the fixed pipeline module list. A directive name
// present in the effective policy activates the corresponding module at
// this fixed position.
var canonicalModuleOrder = []string{
	"rate_limit",
	"forwarded_auth",
	"http_cache",
	"static_file",
	"reverse_proxy",
	"forward_proxy",
	"fastcgi",
	"scgi",
	"cgi",
	"custom_status",
	"body_replace",
}

// EffectivePolicy is the flattened, ordered directive set resolved for one
// (connection, request) pair.
type EffectivePolicy struct {
	HostBlock   *HostBlock
	Location    *LocationBlock
	Directives  DirectiveSet
	Modules     []ModuleActivation
	EffectivePath string
	Rewritten   bool
}

// BuildModuleActivations derives the fixed-order module list from whichever
// canonical directive names are present in the merged DirectiveSet.
func BuildModuleActivations(ds DirectiveSet) []ModuleActivation {
	out := make([]ModuleActivation, 0, len(canonicalModuleOrder))
	for _, name := range canonicalModuleOrder {
		if d, ok := ds[name]; ok {
			out = append(out, ModuleActivation{Name: name, Directive: d})
		}
	}
	return out
}

// Get returns a directive by name, and whether it was present.
func (p *EffectivePolicy) Get(name string) (*Directive, bool) {
	d, ok := p.Directives[name]
	return d, ok
}

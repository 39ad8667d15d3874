package config

import (
	"fmt"
	"io"

	"github.com/ferronweb/ferron/internal/config/kdllite"
)

// Adapter turns raw configuration source into a kdllite.File. The KDL and
// legacy-YAML grammars are external collaborators; this interface is the
// seam they plug into via --config-adapter. Only "kdl" has a bundled
// implementation (internal/config/kdllite). No adapter is registered under
// "yaml-legacy", so LookupAdapter rejects that name unless one is added with
// RegisterAdapter.
type Adapter interface {
	Name() string
	Parse(r io.Reader) (*kdllite.File, error)
}

type kdlAdapter struct{}

func (kdlAdapter) Name() string { return "kdl" }

func (kdlAdapter) Parse(r io.Reader) (*kdllite.File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f, errs := kdllite.Parse(string(b))
	if len(errs) > 0 {
		return f, fmt.Errorf("%d parse error(s), first: %v", len(errs), errs[0])
	}
	return f, nil
}

var adapters = map[string]Adapter{
	"kdl": kdlAdapter{},
}

// RegisterAdapter installs a ConfigAdapter under the given --config-adapter
// name, e.g. a future out-of-tree "yaml-legacy" implementation.
func RegisterAdapter(a Adapter) { adapters[a.Name()] = a }

// LookupAdapter returns the adapter registered under name, or an error
// listing valid names.
func LookupAdapter(name string) (Adapter, error) {
	if name == "" {
		name = "kdl"
	}
	a, ok := adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown config adapter %q (known: kdl)", name)
	}
	return a, nil
}

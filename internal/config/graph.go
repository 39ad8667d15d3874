package config

import (
	"fmt"

	"github.com/ferronweb/ferron/internal/config/kdllite"
)

// snippet DFS color states, for cycle detection: snippet inclusion is a
// DAG, and cycles are rejected during config validation via DFS coloring.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored, acyclic
)

// checkSnippetCycles walks every snippet's "use" references and rejects the
// load if any cycle exists.
func checkSnippetCycles(snippets map[string]*kdllite.Block) error {
	colors := make(map[string]color, len(snippets))
	for name := range snippets {
		colors[name] = white
	}

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch colors[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("snippet cycle detected: %v -> %s", stack, name)
		}

		colors[name] = gray
		blk, ok := snippets[name]
		if ok {
			for _, d := range blk.Directives {
				if d.Name == dirUse && len(d.Args) > 0 {
					if err := visit(d.Args[0], append(stack, name)); err != nil {
						return err
					}
				}
				for _, sub := range d.Body {
					if sub.Name == dirUse && len(sub.Args) > 0 {
						if err := visit(sub.Args[0], append(stack, name)); err != nil {
							return err
						}
					}
				}
			}
		}
		colors[name] = black
		return nil
	}

	for name := range snippets {
		if colors[name] == white {
			if err := visit(name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandSnippets replaces every "use <name>" directive, recursively, with
// the named snippet's directive list, in place of declaration order.
// "active" tracks the in-progress expansion chain so a cycle that slipped
// past checkSnippetCycles (e.g. introduced after validation) still fails
// closed rather than recursing forever.
func expandSnippets(ds []*kdllite.Directive, snippets map[string]*kdllite.Block, active map[string]bool) ([]*kdllite.Directive, error) {
	out := make([]*kdllite.Directive, 0, len(ds))

	for _, d := range ds {
		if d.Name == dirUse {
			if len(d.Args) == 0 {
				return nil, fmt.Errorf("use: missing snippet name at line %d", d.Line)
			}
			name := d.Args[0]
			if active[name] {
				return nil, fmt.Errorf("snippet cycle detected while expanding %q", name)
			}
			blk, ok := snippets[name]
			if !ok {
				return nil, fmt.Errorf("use: unknown snippet %q at line %d", name, d.Line)
			}
			active[name] = true
			expanded, err := expandSnippets(blk.Directives, snippets, active)
			delete(active, name)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}

		nd := &kdllite.Directive{Name: d.Name, Args: d.Args, Line: d.Line}
		if len(d.Body) > 0 {
			expandedBody, err := expandSnippets(d.Body, snippets, active)
			if err != nil {
				return nil, err
			}
			nd.Body = expandedBody
		}
		out = append(out, nd)
	}

	return out, nil
}

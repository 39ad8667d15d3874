package config

import (
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/ferronweb/ferron/internal/config/kdllite"
)

// structural directive names that become part of the graph shape rather
// than flat, inheritable Directives.
const (
	dirLocation    = "location"
	dirErrorConfig = "error_config"
	dirCondition   = "condition"
	dirIf          = "if"
	dirIfNot       = "if_not"
	dirSnippet     = "snippet"
	dirUse         = "use"
	dirRewrite     = "rewrite"
	dirRemoveBase  = "remove_base"
)

// BuildDocument walks a parsed kdllite.File into a Document: it registers
// snippets, expands "use" references (rejecting cycles), and turns each
// host block's directives into the structural graph (locations,
// conditions, error blocks, rewrites) plus a flat inheritable DirectiveSet
// for everything else.
func BuildDocument(f *kdllite.File) (*Document, error) {
	normalizeDirectiveNames(f)

	doc := &Document{
		Globals:  DirectiveSet{},
		Snippets: map[string]*kdllite.Block{},
	}

	// Pass 1: register every "snippet" pseudo-block so forward references
	// resolve regardless of declaration order, and pick up a named
	// "globals { ... }" block when no bare globals block was given.
	globals := f.Globals
	for _, b := range f.Blocks {
		if isSnippetBlock(b) {
			doc.Snippets[b.Addresses[1]] = &kdllite.Block{Addresses: []string{b.Addresses[1]}, Directives: b.Directives}
		}
		if globals == nil && len(b.Addresses) == 1 && b.Addresses[0] == "globals" {
			globals = b
		}
	}
	for _, b := range f.Blocks {
		for _, d := range b.Directives {
			if d.Name == dirSnippet && len(d.Args) == 1 {
				doc.Snippets[d.Args[0]] = &kdllite.Block{Addresses: []string{d.Args[0]}, Directives: d.Body}
			}
		}
	}

	if err := checkSnippetCycles(doc.Snippets); err != nil {
		return nil, err
	}

	if globals != nil {
		expanded, err := expandSnippets(globals.Directives, doc.Snippets, map[string]bool{})
		if err != nil {
			return nil, err
		}
		doc.Globals, _, _, _, _ = splitDirectives(expanded, 0)
	}

	for i, b := range f.Blocks {
		if b == globals || isSnippetBlock(b) {
			continue
		}
		hb, err := buildHostBlock(b, doc.Snippets, i)
		if err != nil {
			return nil, err
		}
		if hb != nil {
			doc.HostBlocks = append(doc.HostBlocks, hb)
		}
	}

	return doc, nil
}

func isSnippetBlock(b *kdllite.Block) bool {
	return len(b.Addresses) == 2 && b.Addresses[0] == dirSnippet
}

func buildHostBlock(b *kdllite.Block, snippets map[string]*kdllite.Block, order int) (*HostBlock, error) {
	if len(b.Addresses) == 0 {
		return nil, nil
	}

	hb := &HostBlock{
		Conditions:  map[string]*ConditionDef{},
		ErrorBlocks: map[string]*ErrorBlock{},
		Order:       order,
	}

	for _, addr := range b.Addresses {
		for _, part := range strings.Split(addr, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			hb.Keys = append(hb.Keys, parseHostKey(part))
		}
	}

	expanded, err := expandSnippets(b.Directives, snippets, map[string]bool{})
	if err != nil {
		return nil, err
	}

	flat, locations, conds, conditionals, errBlocks := splitDirectivesFull(expanded, 0)
	hb.Directives = flat
	hb.Locations = locations
	hb.Conditionals = conditionals
	for _, c := range conds {
		hb.Conditions[c.Name] = c
	}
	for _, e := range errBlocks {
		hb.ErrorBlocks[e.Status] = e
	}

	for _, d := range expanded {
		if d.Name == dirRewrite {
			hb.Rewrites = append(hb.Rewrites, parseRewrite(d))
		}
	}

	return hb, nil
}

func parseHostKey(s string) HostKey {
	pattern, port := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 && !strings.Contains(s[i:], "]") {
		pattern, port = s[:i], s[i+1:]
	}
	return HostKey{Pattern: pattern, Port: port}
}

func parseRewrite(d *kdllite.Directive) RewriteRule {
	r := RewriteRule{}
	if len(d.Args) > 0 {
		r.Match = d.Args[0]
	}
	if len(d.Args) > 1 {
		r.Replace = d.Args[1]
	}
	for _, sub := range d.Body {
		switch sub.Name {
		case "regex":
			r.MatchIsRegex = true
		case "file":
			r.FileOnly = true
		case "directory":
			r.DirOnly = true
		case "last":
			r.Last = true
		}
	}
	return r
}

// splitDirectives is the shallow form used for the globals scope, which has
// no locations/conditions of its own.
func splitDirectives(ds []*kdllite.Directive, depth int) (DirectiveSet, []*LocationBlock, []*ConditionDef, []*ConditionalBlock, []*ErrorBlock) {
	return splitDirectivesFull(ds, depth)
}

func splitDirectivesFull(ds []*kdllite.Directive, depth int) (DirectiveSet, []*LocationBlock, []*ConditionDef, []*ConditionalBlock, []*ErrorBlock) {
	flat := DirectiveSet{}
	var (
		locations    []*LocationBlock
		conditions   []*ConditionDef
		conditionals []*ConditionalBlock
		errBlocks    []*ErrorBlock
	)

	order := 0
	for _, d := range ds {
		switch d.Name {
		case dirLocation:
			order++
			loc := &LocationBlock{Depth: depth, Order: order}
			if len(d.Args) > 0 {
				loc.PathPrefix = d.Args[0]
			}
			sub, nestedLoc, _, nestedCond, nestedErr := splitDirectivesFull(d.Body, depth+1)
			for _, x := range sub {
				if x.Name == dirRemoveBase {
					loc.RemoveBase = true
				}
			}
			delete(sub, dirRemoveBase)
			loc.Directives = sub
			locations = append(locations, loc)
			locations = append(locations, nestedLoc...)
			conditionals = append(conditionals, nestedCond...)
			errBlocks = append(errBlocks, nestedErr...)
		case dirRemoveBase:
			flat[d.Name] = toDirective(d)
		case dirErrorConfig:
			eb := &ErrorBlock{Status: "*"}
			if len(d.Args) > 0 {
				eb.Status = d.Args[0]
			}
			sub, _, _, _, _ := splitDirectivesFull(d.Body, depth+1)
			eb.Directives = sub
			errBlocks = append(errBlocks, eb)
		case dirCondition:
			cd := &ConditionDef{}
			if len(d.Args) > 0 {
				cd.Name = d.Args[0]
			}
			for _, sub := range d.Body {
				cd.Subconditions = append(cd.Subconditions, parseSubcondition(sub))
			}
			conditions = append(conditions, cd)
		case dirIf, dirIfNot:
			cb := &ConditionalBlock{Negate: d.Name == dirIfNot, Depth: depth + 1}
			if len(d.Args) > 0 {
				cb.ConditionName = d.Args[0]
			}
			sub, nestedLoc, _, nestedCond, nestedErr := splitDirectivesFull(d.Body, depth+1)
			cb.Directives = sub
			conditionals = append(conditionals, cb)
			locations = append(locations, nestedLoc...)
			conditionals = append(conditionals, nestedCond...)
			errBlocks = append(errBlocks, nestedErr...)
		case dirSnippet, dirUse:
			// snippet declarations are registered in pass 1; "use" is
			// consumed entirely during expandSnippets and never reaches here.
		default:
			flat[d.Name] = toDirective(d)
		}
	}

	return flat, locations, conditions, conditionals, errBlocks
}

// normalizeDirectiveNames rewrites every directive name in f (recursively,
// including nested bodies) to snake_case, so a config author writing
// `ReadTimeout 30s` or `read-timeout 30s` resolves to the same directive as
// `read_timeout 30s`. Host/location addresses and directive arguments are
// untouched; only the directive keyword itself is normalized.
func normalizeDirectiveNames(f *kdllite.File) {
	if f.Globals != nil {
		normalizeDirectiveList(f.Globals.Directives)
	}
	for _, b := range f.Blocks {
		normalizeDirectiveList(b.Directives)
	}
}

func normalizeDirectiveList(ds []*kdllite.Directive) {
	for _, d := range ds {
		d.Name = strcase.ToSnake(d.Name)
		normalizeDirectiveList(d.Body)
	}
}

func toDirective(d *kdllite.Directive) *Directive {
	return &Directive{Name: d.Name, Args: append([]string(nil), d.Args...), Line: d.Line}
}

// parseSubcondition converts one predicate directive inside a "condition"
// block. "header" carries a key before its op/value ("header X-Api-Key eq
// secret"); every other subject (method, path, query) has no key, just an
// op/value pair ("path prefix /api/").
func parseSubcondition(d *kdllite.Directive) Subcondition {
	sc := Subcondition{Name: d.Name}
	args := d.Args
	if d.Name == "header" {
		if len(args) > 0 {
			sc.Key = args[0]
			args = args[1:]
		}
	}
	if len(args) > 0 {
		sc.Op = args[0]
	}
	if len(args) > 1 {
		sc.Value = strings.Join(args[1:], " ")
	}
	return sc
}

// ParsePort turns a HostKey.Port (which may be "") into an int, defaulting
// to 0 ("no explicit port constraint").
func ParsePort(port string) int {
	if port == "" {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

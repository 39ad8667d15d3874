// Package config implements the configuration-driven matcher: the document
// model a parsed config is loaded into, directive inheritance and snippet
// expansion, HostKey/LocationBlock specificity resolution, and the
// immutable ConfigSnapshot workers hold a reference to.
//
// Actual grammar parsing (KDL, legacy YAML) is an external collaborator;
// this package consumes the generic node tree an Adapter produces
// (internal/config/kdllite.File is the bundled one) and never parses
// source text itself.
package config

import (
	"fmt"
	"strings"

	"github.com/ferronweb/ferron/internal/config/kdllite"
)

// Directive is one resolved name/args pair in an effective policy. Args are
// kept as raw strings; individual modules are responsible for interpreting
// their own directive's arguments (module-specific typing lives at the
// pipeline layer, not here: flat fields decoded once by mapstructure
// rather than re-parsed per use).
type Directive struct {
	Name string
	Args []string
	Line int
}

// DirectiveSet is name -> last-declared Directive within one scope. "Last
// declared wins" within a single scope; across scopes, child replaces
// parent in the resulting EffectivePolicy (see Merge).
type DirectiveSet map[string]*Directive

// Merge returns a new DirectiveSet with every parent directive, overridden
// by any directive the child also declares. Directives present only in the
// parent are inherited unchanged: replace-if-present, inherit-otherwise.
func Merge(parent, child DirectiveSet) DirectiveSet {
	out := make(DirectiveSet, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

// HostKey is one host-matching pattern: exact, wildcard ("*"), left-wildcard
// ("*.suffix"), with an optional explicit port.
type HostKey struct {
	Pattern string // "*", "*.suffix", or an exact hostname
	Port    string // "" means "no explicit port" (matches as default)
}

// Kind classifies the pattern for specificity ordering.
type HostKeyKind int

const (
	KindExact HostKeyKind = iota
	KindLeftWildcardSuffix
	KindWildcard
)

func (k HostKey) Kind() HostKeyKind {
	if k.Pattern == "*" {
		return KindWildcard
	}
	if strings.HasPrefix(k.Pattern, "*.") {
		return KindLeftWildcardSuffix
	}
	return KindExact
}

// Specificity returns a value such that a HostKey with a larger value wins a
// match over one with a smaller value: exact > longer-suffix >
// shorter-suffix > "*", ties broken by port presence (an explicit port
// wins for that port; a pattern without a port wins as the default).
func (k HostKey) Specificity() int {
	base := 0
	switch k.Kind() {
	case KindExact:
		base = 1_000_000
	case KindLeftWildcardSuffix:
		base = len(k.Pattern) // longer suffix => larger value
	case KindWildcard:
		base = 0
	}
	if k.Port != "" {
		base += 500_000
	}
	return base
}

// Matches reports whether host:port satisfies this HostKey.
func (k HostKey) Matches(host, port string) bool {
	if k.Port != "" && k.Port != port {
		return false
	}
	switch k.Kind() {
	case KindWildcard:
		return true
	case KindLeftWildcardSuffix:
		suffix := k.Pattern[1:] // ".suffix"
		return strings.HasSuffix(host, suffix) && host != suffix[1:]
	default:
		return strings.EqualFold(k.Pattern, host)
	}
}

// LocationBlock matches a URL path subtree within a HostBlock.
type LocationBlock struct {
	PathPrefix string
	RemoveBase bool
	Depth      int // conditional nesting depth this block was declared at
	Directives DirectiveSet
	Order      int // declaration order, for the first-declared tie-break
}

// Subcondition is a single predicate evaluated against the request.
type Subcondition struct {
	Name  string // e.g. "header", "method", "path"
	Key   string // e.g. header name
	Op    string // "eq", "regex", "prefix"
	Value string
}

// ConditionDef is a named, reusable predicate: it passes iff every
// subcondition passes (logical AND).
type ConditionDef struct {
	Name          string
	Subconditions []Subcondition
}

// ConditionalBlock is an "if"/"if_not" child: its directives are folded
// into the effective policy only when ConditionDef's evaluation matches
// (negated for if_not).
type ConditionalBlock struct {
	ConditionName string
	Negate        bool
	Directives    DirectiveSet
	Depth         int
}

// ErrorBlock supplies directives to apply when a response carries a given
// status code (or "*" for any error status).
type ErrorBlock struct {
	Status     string
	Directives DirectiveSet
}

// RewriteRule is one entry of a host's ordered rewrite list.
type RewriteRule struct {
	Match     string // prefix or regex, per MatchIsRegex
	MatchIsRegex bool
	Replace   string
	FileOnly  bool
	DirOnly   bool
	Last      bool
}

// HostBlock is the ordered set of directives plus child scopes associated
// with one or more HostKeys.
type HostBlock struct {
	Keys        []HostKey
	Directives  DirectiveSet
	Locations   []*LocationBlock
	Conditions  map[string]*ConditionDef
	Conditionals []*ConditionalBlock
	ErrorBlocks map[string]*ErrorBlock
	Rewrites    []RewriteRule
	Order       int
}

// Document is the fully built, snippet-expanded configuration graph — the
// in-memory result of loading a source file through an Adapter. It has not
// yet been validated (see Validate) nor wrapped in a Snapshot.
type Document struct {
	Globals    DirectiveSet
	HostBlocks []*HostBlock
	Snippets   map[string]*kdllite.Block
}

// FindHostBlock returns the declared HostBlock a given HostKey literally
// belongs to, by exact pattern and port; the live request path uses
// Matcher.SelectHostBlock instead, which applies specificity ordering
// rather than exact lookup.
func (d *Document) FindHostBlock(pattern, port string) *HostBlock {
	for _, hb := range d.HostBlocks {
		for _, k := range hb.Keys {
			if k.Pattern == pattern && k.Port == port {
				return hb
			}
		}
	}
	return nil
}

func (d *Document) String() string {
	var sb strings.Builder
	for _, hb := range d.HostBlocks {
		fmt.Fprintf(&sb, "host %v: %d directives, %d locations\n", hb.Keys, len(hb.Directives), len(hb.Locations))
	}
	return sb.String()
}

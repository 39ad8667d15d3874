package config

import (
	"net"
	"regexp"
	"sort"
	"strings"
)

// StatChecker lets the matcher gate file/directory-only rewrite rules
// without owning filesystem logic itself; static-file byte mechanics are an
// external collaborator. A nil StatChecker makes every file/directory
// predicate pass.
type StatChecker func(path string) (isDir bool, exists bool)

// MatchRequest is everything the matcher needs to resolve an
// EffectivePolicy for one request, independent of which protocol layer
// (HTTP/1, /2, /3) produced it.
type MatchRequest struct {
	SNI      string
	Host     string // Host header, used when SNI is absent
	RemoteIP string // used when neither SNI nor Host is present
	Port     string
	Method   string
	Path     string
	Query    string
	Headers  map[string][]string

	AllowDoubleSlash bool
	NoSanitize       bool
	Stat             StatChecker
}

// Matcher resolves an accepted connection/request to an EffectivePolicy
// through a fixed sequence of ordered resolution steps.
type Matcher struct {
	doc *Document
}

func NewMatcher(doc *Document) *Matcher { return &Matcher{doc: doc} }

// Resolve runs the full nine-step resolution pipeline.
func (m *Matcher) Resolve(req *MatchRequest) (*EffectivePolicy, error) {
	serverName := req.SNI
	if serverName == "" {
		serverName = req.Host
	}
	if serverName == "" {
		serverName = req.RemoteIP
	}
	serverName = stripPort(serverName)

	hb := m.SelectHostBlock(serverName, req.Port)
	if hb == nil {
		return nil, ErrNoMatchingHost
	}

	path := req.Path
	if !req.NoSanitize {
		var err error
		path, err = SanitizePath(path, req.AllowDoubleSlash)
		if err != nil {
			return nil, err
		}
	}

	rewritten := false
	for _, rule := range hb.Rewrites {
		newPath, matched := applyRewrite(rule, path, req.Stat)
		if matched {
			path = newPath
			rewritten = true
			if rule.Last {
				break
			}
		}
	}

	if rewritten {
		// Resolution re-runs once against the rewritten path: sanitization
		// and host selection may behave differently post-rewrite. Host
		// selection is stable (rewrites don't change Host/SNI), so only
		// re-sanitize.
		if !req.NoSanitize {
			var err error
			path, err = SanitizePath(path, req.AllowDoubleSlash)
			if err != nil {
				return nil, err
			}
		}
	}

	loc := selectLocation(hb.Locations, path)

	effectivePath := path
	if loc != nil && loc.RemoveBase {
		effectivePath = strings.TrimPrefix(path, loc.PathPrefix)
		if !strings.HasPrefix(effectivePath, "/") {
			effectivePath = "/" + effectivePath
		}
	}

	merged := hb.Directives
	depth := 0
	if loc != nil {
		merged = Merge(merged, loc.Directives)
		depth = loc.Depth
	}

	merged = applyConditionals(merged, hb.Conditions, hb.Conditionals, req, depth)

	policy := &EffectivePolicy{
		HostBlock:     hb,
		Location:      loc,
		Directives:    merged,
		EffectivePath: effectivePath,
		Rewritten:     rewritten,
	}
	policy.Modules = BuildModuleActivations(merged)

	return policy, nil
}

// SelectHostBlock selects the HostBlock whose best matching HostKey has
// the highest Specificity(); ties are broken by declaration order
// (first-declared wins), since HostKey.Specificity already folds in the
// port tie-break.
func (m *Matcher) SelectHostBlock(host, port string) *HostBlock {
	type candidate struct {
		hb    *HostBlock
		score int
	}

	var best *candidate
	for _, hb := range m.doc.HostBlocks {
		for _, k := range hb.Keys {
			if !k.Matches(host, port) {
				continue
			}
			score := k.Specificity()
			if best == nil || score > best.score || (score == best.score && hb.Order < best.hb.Order) {
				best = &candidate{hb: hb, score: score}
			}
		}
	}
	if best == nil {
		return nil
	}
	return best.hb
}

// selectLocation implements step 6: longest-prefix wins; among equal
// prefixes, the deepest conditional nesting wins; otherwise first-declared.
func selectLocation(locs []*LocationBlock, path string) *LocationBlock {
	var best *LocationBlock
	for _, loc := range locs {
		if !strings.HasPrefix(path, loc.PathPrefix) {
			continue
		}
		if best == nil {
			best = loc
			continue
		}
		if len(loc.PathPrefix) > len(best.PathPrefix) {
			best = loc
		} else if len(loc.PathPrefix) == len(best.PathPrefix) {
			if loc.Depth > best.Depth {
				best = loc
			} else if loc.Depth == best.Depth && loc.Order < best.Order {
				best = loc
			}
		}
	}
	return best
}

// applyConditionals implements step 7: evaluate every condition block in
// scope and fold in the directives of any "if"/"if_not" whose condition
// evaluation matches (negated for if_not). Conditionals declared deeper than
// the selected location's depth are out of scope.
func applyConditionals(base DirectiveSet, conds map[string]*ConditionDef, conditionals []*ConditionalBlock, req *MatchRequest, maxDepth int) DirectiveSet {
	out := base
	// stable order: declaration order as stored in the slice
	sorted := append([]*ConditionalBlock(nil), conditionals...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Depth < sorted[j].Depth })

	for _, cb := range sorted {
		if cb.Depth > maxDepth+1 {
			continue
		}
		cd, ok := conds[cb.ConditionName]
		if !ok {
			continue
		}
		matched := evaluateCondition(cd, req)
		if cb.Negate {
			matched = !matched
		}
		if matched {
			out = Merge(out, cb.Directives)
		}
	}
	return out
}

func evaluateCondition(cd *ConditionDef, req *MatchRequest) bool {
	for _, sc := range cd.Subconditions {
		if !evaluateSubcondition(sc, req) {
			return false
		}
	}
	return true
}

func evaluateSubcondition(sc Subcondition, req *MatchRequest) bool {
	var subject string
	switch sc.Name {
	case "header":
		if vs, ok := req.Headers[strings.ToLower(sc.Key)]; ok && len(vs) > 0 {
			subject = vs[0]
		}
	case "method":
		subject = req.Method
	case "path":
		subject = req.Path
	case "query":
		subject = req.Query
	default:
		return false
	}

	switch sc.Op {
	case "regex":
		re, err := regexp.Compile(sc.Value)
		if err != nil {
			return false
		}
		return re.MatchString(subject)
	case "prefix":
		return strings.HasPrefix(subject, sc.Value)
	default: // "eq" or unset
		return strings.EqualFold(subject, sc.Value)
	}
}

func applyRewrite(rule RewriteRule, path string, stat StatChecker) (string, bool) {
	if rule.FileOnly || rule.DirOnly {
		if stat != nil {
			isDir, exists := stat(path)
			if !exists {
				return path, false
			}
			if rule.FileOnly && isDir {
				return path, false
			}
			if rule.DirOnly && !isDir {
				return path, false
			}
		}
	}

	if rule.MatchIsRegex {
		re, err := regexp.Compile(rule.Match)
		if err != nil {
			return path, false
		}
		if !re.MatchString(path) {
			return path, false
		}
		return re.ReplaceAllString(path, rule.Replace), true
	}

	if !strings.HasPrefix(path, rule.Match) {
		return path, false
	}
	return rule.Replace + strings.TrimPrefix(path, rule.Match), true
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

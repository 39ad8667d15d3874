package config

import "testing"

func buildDoc(t *testing.T, src string) *Document {
	t.Helper()
	f := parseOrFail(t, src)
	doc, err := BuildDocument(f)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	return doc
}

func TestMatcherPrefersExactHostOverWildcard(t *testing.T) {
	doc := buildDoc(t, `
*.example.com {
	root /wild
}
api.example.com {
	root /exact
}
`)
	m := NewMatcher(doc)
	hb := m.SelectHostBlock("api.example.com", "443")
	if hb == nil || hb.Directives["root"].Args[0] != "/exact" {
		t.Fatalf("expected exact host match to win, got %+v", hb)
	}
}

func TestMatcherFallsBackToWildcard(t *testing.T) {
	doc := buildDoc(t, `
*.example.com {
	root /wild
}
api.example.com {
	root /exact
}
`)
	m := NewMatcher(doc)
	hb := m.SelectHostBlock("other.example.com", "443")
	if hb == nil || hb.Directives["root"].Args[0] != "/wild" {
		t.Fatalf("expected wildcard fallback, got %+v", hb)
	}
}

func TestMatcherNoMatchingHostErrors(t *testing.T) {
	doc := buildDoc(t, `
api.example.com {
	root /exact
}
`)
	m := NewMatcher(doc)
	_, err := m.Resolve(&MatchRequest{Host: "nowhere.example.com", Port: "443", Path: "/"})
	if err != ErrNoMatchingHost {
		t.Fatalf("expected ErrNoMatchingHost, got %v", err)
	}
}

func TestMatcherLocationLongestPrefixWins(t *testing.T) {
	doc := buildDoc(t, `
example.com {
	root /default
	location / {
		custom_status 200
	}
	location /api {
		reverse_proxy backend1
	}
}
`)
	m := NewMatcher(doc)
	policy, err := m.Resolve(&MatchRequest{Host: "example.com", Port: "443", Path: "/api/users"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if policy.Location == nil || policy.Location.PathPrefix != "/api" {
		t.Fatalf("expected longest-prefix location /api, got %+v", policy.Location)
	}
	if _, ok := policy.Get("reverse_proxy"); !ok {
		t.Fatalf("expected reverse_proxy directive in effective policy")
	}
}

func TestMatcherDirectiveInheritance(t *testing.T) {
	doc := buildDoc(t, `
example.com {
	root /srv
	gzip on
	location /api {
		gzip off
	}
}
`)
	m := NewMatcher(doc)
	policy, err := m.Resolve(&MatchRequest{Host: "example.com", Port: "443", Path: "/api/x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	root, ok := policy.Get("root")
	if !ok || root.Args[0] != "/srv" {
		t.Fatalf("expected inherited root directive, got %+v", root)
	}
	gzip, ok := policy.Get("gzip")
	if !ok || gzip.Args[0] != "off" {
		t.Fatalf("expected location override gzip=off, got %+v", gzip)
	}
}

func TestMatcherConditionalActivation(t *testing.T) {
	doc := buildDoc(t, `
example.com {
	condition is_api {
		path prefix /api
	}
	if is_api {
		custom_status 200
	}
}
`)
	m := NewMatcher(doc)

	policy, err := m.Resolve(&MatchRequest{Host: "example.com", Port: "443", Path: "/api/x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := policy.Get("custom_status"); !ok {
		t.Fatalf("expected custom_status activated for /api/x")
	}

	policy2, err := m.Resolve(&MatchRequest{Host: "example.com", Port: "443", Path: "/other"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := policy2.Get("custom_status"); ok {
		t.Fatalf("did not expect custom_status for /other")
	}
}

func TestMatcherModuleActivationOrderIsCanonical(t *testing.T) {
	doc := buildDoc(t, `
example.com {
	reverse_proxy backend1
	rate_limit 10
}
`)
	m := NewMatcher(doc)
	policy, err := m.Resolve(&MatchRequest{Host: "example.com", Port: "443", Path: "/"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(policy.Modules) != 2 {
		t.Fatalf("expected 2 modules activated, got %d", len(policy.Modules))
	}
	if policy.Modules[0].Name != "rate_limit" || policy.Modules[1].Name != "reverse_proxy" {
		t.Fatalf("expected canonical order [rate_limit, reverse_proxy], got %+v", policy.Modules)
	}
}

func TestMatcherRejectsPathTraversal(t *testing.T) {
	doc := buildDoc(t, `
example.com {
	root /srv
}
`)
	m := NewMatcher(doc)
	_, err := m.Resolve(&MatchRequest{Host: "example.com", Port: "443", Path: "/../etc/passwd"})
	if err != ErrPathTraversal {
		t.Fatalf("expected ErrPathTraversal, got %v", err)
	}
}

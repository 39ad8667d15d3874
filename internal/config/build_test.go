package config

import (
	"testing"

	"github.com/ferronweb/ferron/internal/config/kdllite"
)

func parseOrFail(t *testing.T, src string) *kdllite.File {
	t.Helper()
	f, errs := kdllite.Parse(src)
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	return f
}

func TestBuildDocumentHostBlockAndLocation(t *testing.T) {
	f := parseOrFail(t, `
example.com {
	root /var/www
	location /api {
		reverse_proxy backend1
	}
}
`)
	doc, err := BuildDocument(f)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	if len(doc.HostBlocks) != 1 {
		t.Fatalf("expected 1 host block, got %d", len(doc.HostBlocks))
	}
	hb := doc.HostBlocks[0]
	if _, ok := hb.Directives["root"]; !ok {
		t.Fatalf("expected root directive on host block")
	}
	if len(hb.Locations) != 1 || hb.Locations[0].PathPrefix != "/api" {
		t.Fatalf("expected one /api location, got %+v", hb.Locations)
	}
	if _, ok := hb.Locations[0].Directives["reverse_proxy"]; !ok {
		t.Fatalf("expected reverse_proxy directive inside location")
	}
}

func TestBuildDocumentSnippetExpansion(t *testing.T) {
	f := parseOrFail(t, `
snippet common {
	gzip on
}

example.com {
	use common
	root /var/www
}
`)
	doc, err := BuildDocument(f)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	hb := doc.HostBlocks[0]
	if _, ok := hb.Directives["gzip"]; !ok {
		t.Fatalf("expected snippet directive 'gzip' to be expanded into host block")
	}
}

func TestBuildDocumentGlobalsScope(t *testing.T) {
	f := parseOrFail(t, `
globals {
	cache_max_entries 2048
}

example.com {
	root /var/www
}
`)
	doc, err := BuildDocument(f)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	d, ok := doc.Globals["cache_max_entries"]
	if !ok || len(d.Args) != 1 || d.Args[0] != "2048" {
		t.Fatalf("expected global cache_max_entries=2048, got %+v", d)
	}
}

func TestBuildDocumentErrorConfigAndCondition(t *testing.T) {
	f := parseOrFail(t, `
example.com {
	condition is_api {
		path prefix /api/
	}
	if is_api {
		custom_status 200
	}
	error_config 404 {
		custom_status 404
	}
}
`)
	doc, err := BuildDocument(f)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	hb := doc.HostBlocks[0]
	if _, ok := hb.Conditions["is_api"]; !ok {
		t.Fatalf("expected condition is_api registered")
	}
	if len(hb.Conditionals) != 1 || hb.Conditionals[0].ConditionName != "is_api" {
		t.Fatalf("expected one conditional referencing is_api, got %+v", hb.Conditionals)
	}
	if _, ok := hb.ErrorBlocks["404"]; !ok {
		t.Fatalf("expected error_config for 404")
	}
}

func TestBuildDocumentNormalizesDirectiveNameCasing(t *testing.T) {
	f := parseOrFail(t, `
example.com {
	ReadTimeout 30s
}
`)
	doc, err := BuildDocument(f)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	hb := doc.HostBlocks[0]
	d, ok := hb.Directives["read_timeout"]
	if !ok {
		t.Fatalf("expected ReadTimeout to normalize to read_timeout, got directives %+v", hb.Directives)
	}
	if len(d.Args) != 1 || d.Args[0] != "30s" {
		t.Fatalf("expected arg 30s preserved, got %+v", d.Args)
	}
}

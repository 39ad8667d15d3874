package kdllite

import "testing"

func TestParseSimpleHostBlock(t *testing.T) {
	src := `
example.com {
    root /srv
    location /api {
        reverse_proxy backend1 backend2
    }
}
`
	f, errs := Parse(src)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if len(f.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(f.Blocks))
	}
	b := f.Blocks[0]
	if len(b.Addresses) != 1 || b.Addresses[0] != "example.com" {
		t.Fatalf("unexpected addresses: %v", b.Addresses)
	}
	if len(b.Directives) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(b.Directives))
	}
	loc := b.Directives[1]
	if loc.Name != "location" || len(loc.Args) != 1 || loc.Args[0] != "/api" {
		t.Fatalf("unexpected location directive: %+v", loc)
	}
	if len(loc.Body) != 1 || loc.Body[0].Name != "reverse_proxy" {
		t.Fatalf("unexpected location body: %+v", loc.Body)
	}
}

func TestParseGlobalsBlock(t *testing.T) {
	src := `
{
    log_level info
}
api.test {
    root /srv
}
`
	f, errs := Parse(src)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if f.Globals == nil || len(f.Globals.Directives) != 1 {
		t.Fatalf("expected globals block with 1 directive, got %+v", f.Globals)
	}
	if len(f.Blocks) != 1 {
		t.Fatalf("expected 1 site block, got %d", len(f.Blocks))
	}
}

func TestParseUnclosedBlockReportsError(t *testing.T) {
	src := `example.com {
    root /srv
`
	_, errs := Parse(src)
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for unclosed block")
	}
}

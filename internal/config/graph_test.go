package config

import "testing"

func TestBuildDocumentRejectsSnippetCycle(t *testing.T) {
	f := parseOrFail(t, `
snippet a {
	use b
}
snippet b {
	use a
}

example.com {
	use a
}
`)
	if _, err := BuildDocument(f); err == nil {
		t.Fatalf("expected cycle error, got nil")
	}
}

func TestBuildDocumentRejectsUnknownSnippet(t *testing.T) {
	f := parseOrFail(t, `
example.com {
	use does_not_exist
}
`)
	if _, err := BuildDocument(f); err == nil {
		t.Fatalf("expected error referencing unknown snippet")
	}
}

func TestBuildDocumentAllowsSharedSnippet(t *testing.T) {
	f := parseOrFail(t, `
snippet common {
	gzip on
}

a.example.com {
	use common
}
b.example.com {
	use common
}
`)
	doc, err := BuildDocument(f)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	for _, hb := range doc.HostBlocks {
		if _, ok := hb.Directives["gzip"]; !ok {
			t.Fatalf("expected gzip expanded into host block %v", hb.Keys)
		}
	}
}

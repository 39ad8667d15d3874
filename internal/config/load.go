package config

import (
	"fmt"
	"os"

	"github.com/ferronweb/ferron/internal/config/kdllite"
)

// LoadResult bundles everything a reload needs to act on: the resolved
// Document/Matcher pair plus the decoded global ServerOptions, so the
// supervisor doesn't need a second pass over the globals directives.
type LoadResult struct {
	Document *Document
	Options  ServerOptions
}

// Load reads path through the named adapter (empty defaults to "kdl"),
// builds a Document, decodes and validates its globals into ServerOptions,
// and returns both — without touching a Store. Splitting Load from Publish
// lets the supervisor validate a candidate reload before swapping it in:
// parse and validate the new configuration, and on any failure log the
// error and continue serving the previous Snapshot unmodified.
func Load(path string, adapterName string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	adapter, err := LookupAdapter(adapterName)
	if err != nil {
		return nil, err
	}

	kf, err := adapter.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: parse: %w", adapter.Name(), err)
	}

	doc, err := BuildDocument(kf)
	if err != nil {
		return nil, fmt.Errorf("build document: %w", err)
	}

	opts, err := DecodeServerOptions(globalsDirectiveSet(kf, doc))
	if err != nil {
		return nil, fmt.Errorf("globals: %w", err)
	}

	return &LoadResult{Document: doc, Options: opts}, nil
}

// globalsDirectiveSet flattens the document's top-level globals (the
// directives living outside any host block) into a DirectiveSet for
// DecodeServerOptions, using the same toDirective conversion build.go uses
// for everything else so parsing stays in one place.
func globalsDirectiveSet(kf *kdllite.File, doc *Document) DirectiveSet {
	if kf.Globals == nil {
		return doc.Globals
	}
	ds := DirectiveSet{}
	for _, d := range kf.Globals.Directives {
		conv := toDirective(d)
		ds[conv.Name] = conv
	}
	return ds
}

// ReloadInto runs Load and, on success, calls store.Publish with the
// resulting Document, returning the new Snapshot and decoded options. On
// failure the Store is left untouched, matching the "keep old on failure"
// reload contract.
func ReloadInto(store *Store, path string, adapterName string) (*Snapshot, ServerOptions, error) {
	res, err := Load(path, adapterName)
	if err != nil {
		return nil, ServerOptions{}, err
	}
	snap := store.Publish(res.Document)
	return snap, res.Options, nil
}

package ferrerr

import (
	"errors"
	"net/http"
	"testing"
)

func TestCodeErrorBasics(t *testing.T) {
	e := CodeNotFound.Error()
	if !e.IsCode(CodeNotFound) {
		t.Fatalf("expected IsCode(CodeNotFound) true")
	}
	if StatusFor(e) != http.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", StatusFor(e))
	}
}

func TestErrorParentChain(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	e := CodeUpstreamConnect.Error(root)

	if !e.HasParent() {
		t.Fatalf("expected parent to be set")
	}
	if !e.HasCode(CodeUpstreamConnect) {
		t.Fatalf("expected HasCode true for own code")
	}

	seen := 0
	e.Map(func(err error) bool {
		seen++
		return true
	})
	if seen != 2 {
		t.Fatalf("expected to visit self + 1 parent, got %d", seen)
	}
}

func TestCollectNilSafe(t *testing.T) {
	if Collect(nil, nil) != nil {
		t.Fatalf("expected Collect of only nils to return nil")
	}
	if Collect(nil, CodeInternal.Error()) == nil {
		t.Fatalf("expected Collect with one real error to be non-nil")
	}
}

func TestStatusForNil(t *testing.T) {
	if StatusFor(nil) != http.StatusOK {
		t.Fatalf("expected StatusFor(nil) == 200")
	}
}

package challenge

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/mholt/acmez/v3/acme"
)

func TestHTTP01PresentThenServe(t *testing.T) {
	s := NewHTTP01Solver()
	chal := acme.Challenge{Token: "tok123", KeyAuthorization: "tok123.thumbprint"}

	if err := s.Present(context.Background(), chal); err != nil {
		t.Fatalf("Present: %v", err)
	}

	r := httptest.NewRequest("GET", wellKnownPrefix+"tok123", nil)
	w := httptest.NewRecorder()
	if handled := s.ServeHTTP(w, r); !handled {
		t.Fatal("expected the well-known path to be handled")
	}
	if w.Body.String() != "tok123.thumbprint" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}

	if err := s.CleanUp(context.Background(), chal); err != nil {
		t.Fatalf("CleanUp: %v", err)
	}
	w2 := httptest.NewRecorder()
	s.ServeHTTP(w2, r)
	if w2.Code != 404 {
		t.Fatalf("expected 404 after cleanup, got %d", w2.Code)
	}
}

func TestHTTP01IgnoresUnrelatedPaths(t *testing.T) {
	s := NewHTTP01Solver()
	r := httptest.NewRequest("GET", "/some/other/path", nil)
	w := httptest.NewRecorder()
	if handled := s.ServeHTTP(w, r); handled {
		t.Fatal("expected unrelated paths to be left unhandled")
	}
}

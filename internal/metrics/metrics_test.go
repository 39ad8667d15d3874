package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIncCounterExposedViaHandler(t *testing.T) {
	s := New()
	s.IncCounter("requests", map[string]string{"module": "static_file"})
	s.IncCounter("requests", map[string]string{"module": "static_file"})

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/metrics", nil)
	s.Handler().ServeHTTP(w, r)

	body := w.Body.String()
	if !strings.Contains(body, "ferron_requests_total") {
		t.Fatalf("expected counter to appear in exposition output, got:\n%s", body)
	}
}

func TestObserveHistogramExposedViaHandler(t *testing.T) {
	s := New()
	s.ObserveHistogram("request_duration_seconds", map[string]string{"module": "reverse_proxy"}, 0.25)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/metrics", nil)
	s.Handler().ServeHTTP(w, r)

	body := w.Body.String()
	if !strings.Contains(body, "ferron_request_duration_seconds_bucket") {
		t.Fatalf("expected histogram buckets in exposition output, got:\n%s", body)
	}
}

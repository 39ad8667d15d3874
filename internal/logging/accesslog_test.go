package logging

import (
	"strings"
	"testing"
	"time"
)

func TestAccessLogFormatterSubstitutesPlaceholders(t *testing.T) {
	f := NewAccessLogFormatter("{client_ip} {method} {path_and_query} {version} {status_code} {content_length} {header:X-Request-Id}")
	got := f.Format(AccessLogEntry{
		ClientIP:      "10.0.0.1",
		Method:        "GET",
		PathAndQuery:  "/api?x=1",
		ProtoVersion:  "HTTP/2",
		StatusCode:    200,
		ContentLength: 42,
		Timestamp:     time.Unix(0, 0),
		Headers:       map[string][]string{"X-Request-Id": {"abc123"}},
	})
	want := "10.0.0.1 GET /api?x=1 HTTP/2 200 42 abc123"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAccessLogFormatterSubstitutesRequestID(t *testing.T) {
	f := NewAccessLogFormatter("{request_id} {status_code}")
	got := f.Format(AccessLogEntry{RequestID: "req-1", StatusCode: 200})
	want := "req-1 200"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAccessLogFormatterMissingHeaderYieldsDash(t *testing.T) {
	f := NewAccessLogFormatter("{header:Missing}")
	got := f.Format(AccessLogEntry{})
	if got != "-" {
		t.Fatalf("got %q, want \"-\"", got)
	}
}

func TestAccessLogFormatterDefaultTemplate(t *testing.T) {
	f := NewAccessLogFormatter("")
	got := f.Format(AccessLogEntry{ClientIP: "1.2.3.4", Method: "GET", PathAndQuery: "/", StatusCode: 404})
	if !strings.Contains(got, "1.2.3.4") || !strings.Contains(got, "404") {
		t.Fatalf("default template did not include expected fields: %q", got)
	}
}

// Package protocol surfaces a uniform request/response abstraction across
// transports. Idiomatic Go already has one: *http.Request and
// http.ResponseWriter. Rather than inventing a parallel IR, this package
// configures net/http (HTTP/1), golang.org/x/net/http2 (HTTP/2), and
// quic-go's http3 package (HTTP/3) to all terminate into the same
// http.Handler, and adds the few things net/http doesn't give you for free:
// a per-request cancellation signal tied to the configured request
// timeout, hop-by-hop header stripping (used by the reverse-proxy engine),
// and CONNECT/WebSocket upgrade plumbing.
package protocol

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ctxKey avoids collisions with other packages' context keys.
type ctxKey int

const (
	keyProtoVersion ctxKey = iota
	keyStartTime
	keyRequestID
)

// WithRequestID tags a request's context with a per-request identifier,
// generated once per inbound request regardless of protocol, for
// correlating access-log lines, forwarded-auth subrequests, and CGI-family
// adapter invocations across the pipeline.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID returns the tagged request identifier, or "" if untagged.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(keyRequestID).(string)
	return id
}

// NewRequestID generates a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// WithProtoVersion tags a request's context with the wire protocol version
// string ("HTTP/1.1", "HTTP/2.0", "HTTP/3.0") so downstream modules (access
// log, header stripping) can branch on it without re-deriving it from
// r.ProtoMajor/r.ProtoMinor.
func WithProtoVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, keyProtoVersion, version)
}

// ProtoVersion returns the tagged protocol version, or "" if untagged.
func ProtoVersion(ctx context.Context) string {
	v, _ := ctx.Value(keyProtoVersion).(string)
	return v
}

// WithStartTime tags the instant a request's first byte was observed, the
// reference point the request timeout measures from: first byte to
// response headers sent.
func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyStartTime, t)
}

// StartTime returns the tagged start time, or the zero Time if untagged.
func StartTime(ctx context.Context) time.Time {
	t, _ := ctx.Value(keyStartTime).(time.Time)
	return t
}

// hopByHopHeaders are the headers StripHopByHop removes (invalid to forward
// verbatim through a proxying layer). The reverse-proxy engine strips them
// from forwarded requests and relayed responses; no other response path,
// HTTP/3 included, calls StripHopByHop.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop removes hop-by-hop headers from h in place.
func StripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
	if conn := h.Get("Connection"); conn != "" {
		for _, tok := range splitComma(conn) {
			h.Del(tok)
		}
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, trimSpace(s[start:i]))
			start = i + 1
		}
	}
	out = append(out, trimSpace(s[start:]))
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

// RequestTimeoutHandler wraps next in http.TimeoutHandler: if next has not
// returned within timeout of being called, the client receives a 503 with
// the body "request timeout"; the connection is not reset. The response is
// buffered until next returns, and the writer next receives does not
// implement http.Hijacker. A timeout of zero or less returns next unwrapped.
func RequestTimeoutHandler(next http.Handler, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		return next
	}
	return http.TimeoutHandler(next, timeout, "request timeout")
}

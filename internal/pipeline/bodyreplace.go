package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/ferronweb/ferron/internal/config"
)

// BodyReplaceModule rewrites literal substrings in a response body. It
// disables compression automatically when active: it strips
// Content-Encoding/Accept-Encoding negotiation results from the wrapped
// response since a rewritten body can no longer match a precompressed
// sibling's bytes.
type BodyReplaceModule struct{}

func NewBodyReplaceModule() *BodyReplaceModule { return &BodyReplaceModule{} }

func (m *BodyReplaceModule) Name() string { return "body_replace" }

func (m *BodyReplaceModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if len(directive.Args) < 2 {
		return next(ctx, w, r)
	}
	from, to := directive.Args[0], directive.Args[1]

	r.Header.Del("Accept-Encoding") // force upstream/static-file to skip precompressed siblings
	rec := &bodyRecorder{ResponseWriter: w, buf: &bytes.Buffer{}}

	if err := next(ctx, rec, r); err != nil {
		return err
	}

	body := strings.ReplaceAll(rec.buf.String(), from, to)
	rec.ResponseWriter.Header().Del("Content-Length")
	rec.ResponseWriter.Header().Del("Content-Encoding")
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	rec.ResponseWriter.WriteHeader(status)
	_, werr := rec.ResponseWriter.Write([]byte(body))
	return werr
}

// bodyRecorder buffers the downstream response instead of streaming it, so
// body_replace can run its substitution over the complete body. The
// recorder intentionally withholds the real WriteHeader call until the
// rewritten body is ready, since Content-Length would otherwise be wrong.
type bodyRecorder struct {
	http.ResponseWriter
	buf    *bytes.Buffer
	status int
}

func (b *bodyRecorder) WriteHeader(status int) {
	b.status = status
	// deferred: real header write happens once the rewritten body is ready.
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

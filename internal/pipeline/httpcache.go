package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ferronweb/ferron/internal/cache"
	"github.com/ferronweb/ferron/internal/config"
)

// HTTPCacheModule delegates to internal/cache: a single-flight-guarded
// bounded cache keyed by (method, rewritten path+query, Host, Vary-header
// values). Only GET/HEAD with no request body are candidates for caching;
// a path matching the sibling `cache_ignore` directive bypasses the cache
// entirely. A miss runs the remainder of the chain and captures its
// response for storage.
type HTTPCacheModule struct {
	c *cache.Cache
}

func NewHTTPCacheModule(maxEntries int, maxResponseSize int64) *HTTPCacheModule {
	return &HTTPCacheModule{c: cache.New(maxEntries, maxResponseSize)}
}

func (m *HTTPCacheModule) Name() string { return "http_cache" }

func (m *HTTPCacheModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if (r.Method != http.MethodGet && r.Method != http.MethodHead) || r.ContentLength != 0 {
		return next(ctx, w, r)
	}
	if cacheIgnored(policy, r.URL.Path) {
		return next(ctx, w, r)
	}

	varyHeaders := varyDirective(directive)
	key := cache.Key(r.Method, r.URL.RequestURI(), r.Host, headerValues(r.Header, varyHeaders))
	now := time.Now()

	entry, err := m.c.Fetch(key, now, func() (*cache.Entry, error) {
		rec := &responseRecorder{header: http.Header{}, status: http.StatusOK}
		if err := next(ctx, rec, r); err != nil {
			return nil, err
		}
		if rec.status >= 500 || !cacheableCacheControl(rec.header.Get("Cache-Control")) {
			return nil, errNotCacheable
		}
		return &cache.Entry{
			Status:    rec.status,
			Header:    rec.header,
			Body:      rec.buf.Bytes(),
			StoredAt:  now,
			ExpiresAt: now.Add(freshnessLifetime(rec.header.Get("Cache-Control"))),
		}, nil
	})
	if err == errNotCacheable {
		return nil
	}
	if err != nil {
		return err
	}

	for k, vs := range entry.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Cache", cacheStatus(entry.StoredAt, now))
	w.WriteHeader(entry.Status)
	w.Write(entry.Body)
	return nil
}

var errNotCacheable = cacheMiss{}

type cacheMiss struct{}

func (cacheMiss) Error() string { return "response not cacheable" }

func cacheStatus(storedAt, now time.Time) string {
	if now.Sub(storedAt) < time.Millisecond {
		return "MISS"
	}
	return "HIT"
}

func varyDirective(d *config.Directive) []string {
	return d.Args
}

// cacheIgnored reports whether path matches any prefix named by the
// effective policy's `cache_ignore` directive (spec.md §4.8), in which
// case the request bypasses the cache entirely rather than being stored.
func cacheIgnored(policy *config.EffectivePolicy, path string) bool {
	d, ok := policy.Get("cache_ignore")
	if !ok {
		return false
	}
	for _, prefix := range d.Args {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func headerValues(h http.Header, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = h.Get(n)
	}
	return out
}

// cacheableCacheControl reports whether Cache-Control permits storage at
// all (absence of no-store/private).
func cacheableCacheControl(cc string) bool {
	cc = strings.ToLower(cc)
	return !strings.Contains(cc, "no-store") && !strings.Contains(cc, "private")
}

// freshnessLifetime extracts max-age, defaulting to 60s when absent;
// freshness is derived from standard cache-control semantics.
func freshnessLifetime(cc string) time.Duration {
	cc = strings.ToLower(cc)
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "max-age=") {
			if secs, err := strconv.Atoi(strings.TrimPrefix(part, "max-age=")); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 60 * time.Second
}

// responseRecorder buffers a downstream handler's response so http_cache can
// decide whether to store it before it reaches the real ResponseWriter.
type responseRecorder struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

func (r *responseRecorder) Write(b []byte) (int, error) { return r.buf.Write(b) }

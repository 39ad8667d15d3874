package pipeline

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ferronweb/ferron/internal/config"
)

// ForwardedAuthModule sends a subrequest to an auth endpoint: a 2xx
// response continues the chain (optionally copying through auth-supplied
// headers); any other response is relayed verbatim to the client as the
// terminal response.
type ForwardedAuthModule struct {
	client *http.Client
}

func NewForwardedAuthModule() *ForwardedAuthModule {
	return &ForwardedAuthModule{client: &http.Client{Timeout: 10 * time.Second}}
}

func (m *ForwardedAuthModule) Name() string { return "forwarded_auth" }

func (m *ForwardedAuthModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if len(directive.Args) == 0 {
		return next(ctx, w, r)
	}
	authURL := directive.Args[0]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}
	req.Header.Set("X-Forwarded-Uri", r.URL.RequestURI())
	req.Header.Set("X-Forwarded-Method", r.Method)
	if cookie := r.Header.Get("Cookie"); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if sinks.Metrics != nil {
			sinks.Metrics.IncCounter("forwarded_auth_errors_total", nil)
		}
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		for k, vs := range resp.Header {
			if len(k) > 17 && k[:17] == "X-Forwarded-Auth-" {
				r.Header[k[17:]] = vs
			}
		}
		return next(ctx, w, r)
	}

	for k, vs := range resp.Header {
		w.Header()[k] = vs
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return nil
}

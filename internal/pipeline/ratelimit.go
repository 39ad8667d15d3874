package pipeline

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/ferronweb/ferron/internal/config"
	"golang.org/x/time/rate"
)

// RateLimitModule implements a token-bucket-per-client-IP rate_limit
// module using golang.org/x/time/rate, the standard Go rate limiter.
type RateLimitModule struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func NewRateLimitModule(rps float64, burst int) *RateLimitModule {
	return &RateLimitModule{limiters: map[string]*rate.Limiter{}, rps: rps, burst: burst}
}

func (m *RateLimitModule) Name() string { return "rate_limit" }

func (m *RateLimitModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	rps, burst := m.rps, m.burst
	if len(directive.Args) > 0 {
		if v, err := strconv.ParseFloat(directive.Args[0], 64); err == nil {
			rps = v
			burst = int(v)
			if burst < 1 {
				burst = 1
			}
		}
	}
	if rps <= 0 {
		return next(ctx, w, r)
	}

	key := clientIP(r)
	lim := m.limiterFor(key, rps, burst)
	if !lim.Allow() {
		if sinks.Metrics != nil {
			sinks.Metrics.IncCounter("rate_limit_denied_total", map[string]string{"client_ip": key})
		}
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return nil
	}
	return next(ctx, w, r)
}

func (m *RateLimitModule) limiterFor(key string, rps float64, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
		m.limiters[key] = lim
	}
	return lim
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package server is the composition root tying internal/config,
// internal/pipeline, internal/proxy, internal/cache, internal/tlsresolver,
// internal/acme, internal/listener, internal/protocol, and internal/metrics
// into one running process. cmd/ferron only parses flags and calls into
// this package.
package server

import (
	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/pipeline"
)

// buildRegistry constructs a fresh pipeline.Registry from the current
// ServerOptions. Modules that need process-wide defaults (rate_limit's
// token-bucket rate, http_cache's bound) are built here; everything else
// reads its tuning from the per-request EffectivePolicy, so the registry
// only needs rebuilding when ServerOptions itself changes on reload.
func buildRegistry(opts config.ServerOptions) *pipeline.Registry {
	reg := pipeline.NewRegistry()

	reg.Register("rate_limit", func() pipeline.Module {
		return pipeline.NewRateLimitModule(opts.RateLimitRPS, opts.RateLimitBurst)
	})
	reg.Register("forwarded_auth", func() pipeline.Module {
		return pipeline.NewForwardedAuthModule()
	})
	reg.Register("http_cache", func() pipeline.Module {
		return pipeline.NewHTTPCacheModule(opts.CacheMaxEntries, opts.CacheMaxResponseSize)
	})
	reg.Register("static_file", func() pipeline.Module {
		return pipeline.NewStaticFileModule()
	})
	reg.Register("reverse_proxy", func() pipeline.Module {
		return pipeline.NewReverseProxyModule(opts)
	})
	reg.Register("forward_proxy", func() pipeline.Module {
		return pipeline.NewForwardProxyModule()
	})
	reg.Register("fastcgi", func() pipeline.Module {
		return pipeline.NewFastCGIModule()
	})
	reg.Register("scgi", func() pipeline.Module {
		return pipeline.NewSCGIModule()
	})
	reg.Register("cgi", func() pipeline.Module {
		return pipeline.NewCGIModule()
	})
	reg.Register("custom_status", func() pipeline.Module {
		return pipeline.NewCustomStatusModule()
	})
	reg.Register("body_replace", func() pipeline.Module {
		return pipeline.NewBodyReplaceModule()
	})

	return reg
}

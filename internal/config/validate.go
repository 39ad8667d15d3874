package config

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// ServerOptions are the global, process-wide tunables declared in a
// `globals` block without host implication. They're decoded once at load
// time via mapstructure and checked with go-playground/validator/v10.
type ServerOptions struct {
	RequestTimeout        time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	DrainTimeout          time.Duration `mapstructure:"drain_timeout" validate:"gte=0"`
	CacheMaxEntries       int           `mapstructure:"cache_max_entries" validate:"gte=0"`
	CacheMaxResponseSize  int64         `mapstructure:"cache_max_response_size" validate:"gte=0"`
	RateLimitRPS          float64       `mapstructure:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst        int           `mapstructure:"rate_limit_burst" validate:"gte=0"`
	LBHealthCheckWindow   time.Duration `mapstructure:"lb_health_check_window" validate:"gte=0"`
	LBMaxFails            int           `mapstructure:"lb_max_fails" validate:"gte=0"`
	ReactorCount          int           `mapstructure:"reactor_count" validate:"gte=0"`
	AutoTLSOnDemand       bool          `mapstructure:"auto_tls_on_demand"`
	AutoTLSOnDemandAskURL string        `mapstructure:"auto_tls_on_demand_ask" validate:"omitempty,url"`
	TLSMinVersion         string        `mapstructure:"tls_min_version"`
	TLSMaxVersion         string        `mapstructure:"tls_max_version"`
	TLSCiphers            []string      `mapstructure:"tls_ciphers"`
	TLSCurves             []string      `mapstructure:"tls_curves"`
}

// DefaultServerOptions are applied when a globals block omits a field:
// request timeout 300s, cache 1024 entries, power-of-two-choices implied
// elsewhere.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		RequestTimeout:      300 * time.Second,
		DrainTimeout:        10 * time.Second,
		CacheMaxEntries:     1024,
		LBHealthCheckWindow: 30 * time.Second,
		LBMaxFails:          3,
	}
}

var validate = validator.New()

// DecodeServerOptions decodes a DirectiveSet's scalar directives into a
// ServerOptions, starting from DefaultServerOptions, then validates it.
func DecodeServerOptions(ds DirectiveSet) (ServerOptions, error) {
	opts := DefaultServerOptions()

	raw := map[string]interface{}{}
	for name, d := range ds {
		switch len(d.Args) {
		case 0:
			raw[name] = true
		case 1:
			raw[name] = d.Args[0]
		default:
			raw[name] = d.Args
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToBoolHook,
		),
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, err
	}

	if err := validate.Struct(&opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func stringToBoolHook(from, to interface{}) (interface{}, error) {
	return from, nil
}

// parseIntOrDefault is a small helper used by callers decoding a single
// directive argument outside the struct-based path above (e.g. per-location
// overrides that don't warrant a whole ServerOptions).
func parseIntOrDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

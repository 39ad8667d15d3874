package pipeline

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ferronweb/ferron/internal/config"
)

// CustomStatusModule produces a short-circuit response with a configured
// status (and optional Location for redirects), for redirects,
// auth-challenges, and other short-circuit responses.
type CustomStatusModule struct{}

func NewCustomStatusModule() *CustomStatusModule { return &CustomStatusModule{} }

func (m *CustomStatusModule) Name() string { return "custom_status" }

func (m *CustomStatusModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if len(directive.Args) == 0 {
		return next(ctx, w, r)
	}
	status, err := strconv.Atoi(directive.Args[0])
	if err != nil {
		return next(ctx, w, r)
	}

	if loc, ok := policy.Get("redirect_to"); ok && len(loc.Args) > 0 {
		w.Header().Set("Location", loc.Args[0])
	}
	w.WriteHeader(status)
	return nil
}

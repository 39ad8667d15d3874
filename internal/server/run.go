package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ferronweb/ferron/internal/acme/challenge"
	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/metrics"
	"github.com/ferronweb/ferron/internal/supervisor"
	"github.com/ferronweb/ferron/internal/tlsresolver"
)

// Config is everything cmd/ferron collects from flags/environment before
// handing control to Run.
type Config struct {
	ConfigPath    string
	ConfigAdapter string // "" defaults to "kdl"

	MetricsAddr string // "" disables the /metrics listener

	OnDemandAskURL string
	ACME           ACMEConfig

	ALPNPreference []string // defaults to h2, http/1.1 when empty
}

// Run loads the initial configuration, binds every implied listener, and
// blocks until ctx is canceled or the supervisor receives SIGTERM/SIGINT;
// SIGHUP and config-file changes reload in place without returning. It
// returns a non-nil error only when the initial load fails; a listener that
// fails to bind is logged and skipped, and mid-run reload failures are
// logged and otherwise swallowed, matching the supervisor's "keep old
// snapshot" contract.
func Run(ctx context.Context, cfg Config) error {
	metricsSink := metrics.New()
	certStore := tlsresolver.NewCertStore()
	acmeBundle := wireACME(cfg.ACME, certStore)

	var issuer tlsresolver.Issuer = noopIssuer{}
	var http01 *challenge.HTTP01Solver
	if acmeBundle != nil {
		issuer = acmeBundle.manager
		http01 = acmeBundle.http01
	}

	alpn := cfg.ALPNPreference
	if len(alpn) == 0 {
		alpn = []string{"h2", "http/1.1"}
	}

	resolver := tlsresolver.NewResolver(certStore, issuer, tlsresolver.OnDemandConfig{
		Enabled: acmeBundle != nil && cfg.ACME.OnDemandEnabled,
		AskURL:  cfg.OnDemandAskURL,
	}, alpn)

	srv := NewServer(resolver, metricsSink, http01)

	sup := supervisor.New(cfg.ConfigPath, cfg.ConfigAdapter, srv.buildEndpoints, newConnHandler(srv))
	srv.SetStore(sup.Store())
	sup.AddReloadParticipant(srv)

	if acmeBundle != nil {
		sup.AddReloadParticipant(acmeReloadParticipant{bundle: acmeBundle})
		go acmeBundle.runRenewalLoop(ctx, cfg.ACME.RenewInterval)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, metricsSink)
	}

	return sup.Start(ctx)
}

type noopIssuer struct{}

func (noopIssuer) IssueOnDemand(ctx context.Context, hostname string) error {
	return errors.New("acme: on-demand issuance unavailable (ACME not configured)")
}

// acmeReloadParticipant re-registers every TLS host block's domain set with
// the renewer on each reload, so newly added hosts get renewal coverage
// without a restart.
type acmeReloadParticipant struct {
	bundle *acmeBundle
}

func (p acmeReloadParticipant) OnReload(snap *config.Snapshot, opts config.ServerOptions) {
	if snap == nil {
		return
	}
	for _, hb := range snap.Document.HostBlocks {
		if !hostWantsTLS(hb) {
			continue
		}
		domains := make([]string, 0, len(hb.Keys))
		for _, k := range hb.Keys {
			if k.Kind() == config.KindExact {
				domains = append(domains, k.Pattern)
			}
		}
		if len(domains) > 0 {
			p.bundle.renewer.Watch(domains)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, sink *metrics.Sink) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Warn("metrics listener exited")
	}
}

// Command ferron runs the Ferron HTTP server: a configuration-driven
// pipeline server with automatic ACME TLS and reverse-proxy load balancing.
// The CLI surface itself is deliberately small - one binary, one config
// file, reload via SIGHUP - so flags only select the config file/adapter
// and a couple of diagnostics, leaving all per-request behavior to the
// config grammar.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/ferrerr"
	"github.com/ferronweb/ferron/internal/logging"
	"github.com/ferronweb/ferron/internal/server"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var log = logging.Root("cli")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath    string
		configAdapter string
		metricsAddr   string
		moduleConfig  bool
		logLevel      string
		logFormat     string

		acmeEnabled      bool
		acmeDirectoryURL string
		acmeContact      string
		acmeEABKeyID     string
		acmeEABHMACB64   string
		acmeCacheDir     string
		acmeOnDemand     bool
		acmeAskURL       string
	)

	root := &cobra.Command{
		Use:     "ferron",
		Short:   "Ferron is a general-purpose HTTP/1.1, HTTP/2, and experimental HTTP/3 server",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnvOverrides(viper.New(), cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Configure(logging.Options{Level: logLevel, Format: logFormat})

			if moduleConfig {
				return runModuleConfig(configPath, configAdapter)
			}
			return runServe(cmd.Context(), serveOptions{
				configPath:    configPath,
				configAdapter: configAdapter,
				metricsAddr:   metricsAddr,
				acme: server.ACMEConfig{
					Enabled:         acmeEnabled,
					DirectoryURL:    acmeDirectoryURL,
					Contact:         acmeContact,
					EABKeyID:        acmeEABKeyID,
					EABHMACKeyB64:   acmeEABHMACB64,
					CacheDir:        acmeCacheDir,
					OnDemandEnabled: acmeOnDemand,
					RenewInterval:   10 * time.Minute,
				},
				onDemandAskURL: acmeAskURL,
			})
		},
	}
	root.SetVersionTemplate("ferron {{.Version}}\n")

	root.PersistentFlags().StringVar(&configPath, "config", "ferron.kdl", "path to the configuration file")
	root.PersistentFlags().StringVar(&configAdapter, "config-adapter", "kdl", "configuration grammar adapter (kdl, yaml-legacy)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (disabled when empty)")
	root.Flags().BoolVar(&moduleConfig, "module-config", false, "print the registered pipeline modules and error codes, then exit")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	root.Flags().BoolVar(&acmeEnabled, "acme", false, "enable the ACME TLS manager")
	root.Flags().StringVar(&acmeDirectoryURL, "acme-directory-url", "https://acme-v02.api.letsencrypt.org/directory", "ACME directory URL")
	root.Flags().StringVar(&acmeContact, "acme-contact", "", "ACME account contact (e.g. mailto:ops@example.com)")
	root.Flags().StringVar(&acmeEABKeyID, "acme-eab-key-id", "", "External Account Binding key ID, if required by the directory")
	root.Flags().StringVar(&acmeEABHMACB64, "acme-eab-hmac-key", "", "External Account Binding HMAC key, base64url, if required")
	root.Flags().StringVar(&acmeCacheDir, "acme-cache-dir", "./acme-cache", "directory ACME accounts/certificates are persisted under")
	root.Flags().BoolVar(&acmeOnDemand, "acme-on-demand", false, "issue certificates on first handshake for an unknown SNI")
	root.Flags().StringVar(&acmeAskURL, "acme-on-demand-ask", "", "gate URL consulted before on-demand issuance (auto_tls_on_demand_ask)")

	return root
}

// bindEnvOverrides lets FERRON_-prefixed environment variables (e.g.
// FERRON_METRICS_ADDR, FERRON_ACME_CONTACT) override any flag the operator
// didn't pass explicitly on the command line, the way the teacher's
// config/component.go layers viper's AutomaticEnv over an explicit config
// source rather than parsing the environment by hand. Flags the user did
// pass win; viper never touches cmd.Flags() directly, only the bound
// variables each flag already writes into.
func bindEnvOverrides(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix("ferron")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			firstErr = fmt.Errorf("env override for --%s: %w", f.Name, err)
		}
	})
	return firstErr
}

type serveOptions struct {
	configPath     string
	configAdapter  string
	metricsAddr    string
	acme           server.ACMEConfig
	onDemandAskURL string
}

// runServe binds listeners and blocks until SIGTERM/SIGINT or a fatal
// startup error. Exit codes: 0 on a clean shutdown; non-zero when the
// initial config load fails (a listener that fails to bind is logged only).
func runServe(ctx context.Context, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := server.Run(ctx, server.Config{
		ConfigPath:     opts.configPath,
		ConfigAdapter:  opts.configAdapter,
		MetricsAddr:    opts.metricsAddr,
		ACME:           opts.acme,
		OnDemandAskURL: opts.onDemandAskURL,
	})
	if err != nil {
		log.WithError(err).Error("server exited with an error")
	}
	return err
}

// runModuleConfig prints the fixed pipeline module order and the full
// ferrerr code taxonomy, one per line as "name\tdetail", for operators
// diagnosing which modules/codes a build was compiled with.
func runModuleConfig(configPath, adapterName string) error {
	fmt.Println("# pipeline modules (canonical order)")
	for _, act := range config.BuildModuleActivations(allCanonicalDirectives()) {
		fmt.Printf("%s\tactivated-by=%s\n", act.Name, act.Name)
	}

	fmt.Println("# error codes")
	for _, c := range ferrerr.Codes() {
		fmt.Printf("%s\t%s\n", c.String(), c.Message())
	}

	if configPath != "" {
		if _, err := config.Load(configPath, adapterName); err != nil {
			fmt.Printf("# config %s: %v\n", configPath, err)
		} else {
			fmt.Printf("# config %s: ok\n", configPath)
		}
	}
	return nil
}

// allCanonicalDirectives builds a synthetic DirectiveSet naming every
// canonical module, purely so --module-config can list the full fixed
// order regardless of what any particular config file activates.
func allCanonicalDirectives() config.DirectiveSet {
	names := []string{
		"rate_limit", "forwarded_auth", "http_cache", "static_file",
		"reverse_proxy", "forward_proxy", "fastcgi", "scgi", "cgi",
		"custom_status", "body_replace",
	}
	ds := make(config.DirectiveSet, len(names))
	for _, n := range names {
		ds[n] = &config.Directive{Name: n}
	}
	return ds
}

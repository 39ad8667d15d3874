// Package supervisor handles loading and reloading configuration, rebinding
// listeners whose address changed, draining obsolete ones, and coordinating
// signal-driven reload/shutdown. It ties together internal/config (snapshot
// publish), internal/listener (bind per Endpoint), and internal/logging,
// following a signal.Notify + context-cancellation shutdown shape rather
// than a bespoke lifecycle framework.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/listener"
	"github.com/ferronweb/ferron/internal/logging"
)

var log = logging.Root("supervisor")

// EndpointBuilder constructs the listener.Endpoint set for a given
// snapshot; the caller owns how ServerOptions map to addresses/TLS config,
// since that's configuration-shape-specific, not supervisor's concern.
type EndpointBuilder func(snap *config.Snapshot, opts config.ServerOptions) []*listener.Endpoint

// Supervisor owns the current ConfigSnapshot, the live listener set, and
// the reload/shutdown signal loop.
type Supervisor struct {
	configPath    string
	adapterName   string
	store         *config.Store
	buildEndpoint EndpointBuilder
	handler       listener.Handler

	mu        sync.Mutex
	endpoints map[string]*listener.Endpoint // keyed by Endpoint.Address
	opts      config.ServerOptions

	reloadParticipants []ReloadParticipant
}

// ReloadParticipant is notified after a successful reload publishes a new
// snapshot (logging, ACME, and the request dispatcher all participate).
// OnReload must never block on anything that could in turn be waiting on
// the snapshot swap: no participant may hold a lock across its own
// OnReload call that the reload path also needs.
type ReloadParticipant interface {
	OnReload(snap *config.Snapshot, opts config.ServerOptions)
}

func New(configPath, adapterName string, buildEndpoint EndpointBuilder, handler listener.Handler) *Supervisor {
	return &Supervisor{
		configPath:    configPath,
		adapterName:   adapterName,
		store:         config.NewStore(),
		buildEndpoint: buildEndpoint,
		handler:       handler,
		endpoints:     map[string]*listener.Endpoint{},
	}
}

// AddReloadParticipant registers p to be notified on every successful
// reload, including the initial load.
func (s *Supervisor) AddReloadParticipant(p ReloadParticipant) {
	s.reloadParticipants = append(s.reloadParticipants, p)
}

// Store exposes the config store for components (e.g. the matcher-driving
// HTTP handler) that need to read the current snapshot per request.
func (s *Supervisor) Store() *config.Store { return s.store }

// Start performs the initial load, binds all endpoints, and launches the
// accept loops plus the signal/file-watch reload loop. It blocks until ctx
// is canceled, then drains every endpoint before returning.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	watcher, werr := fsnotify.NewWatcher()
	if werr == nil {
		defer watcher.Close()
		if err := watcher.Add(s.configPath); err != nil {
			log.WithError(err).Warn("failed to watch config file for changes; SIGHUP reload still works")
		}
	} else {
		log.WithError(werr).Warn("fsnotify unavailable; falling back to signal-only reload")
	}

	for {
		select {
		case <-ctx.Done():
			s.drainAll()
			return nil

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if err := s.reload(ctx); err != nil {
					log.WithError(err).Warn("config reload failed; keeping previous snapshot")
				}
			case syscall.SIGTERM, syscall.SIGINT:
				s.drainAll()
				return nil
			}

		case ev, ok := <-watcherEvents(watcher):
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := s.reload(ctx); err != nil {
					log.WithError(err).Warn("config reload failed after file change; keeping previous snapshot")
				}
			}
		}
	}
}

// watcherEvents returns w.Events, or a nil channel (which blocks forever
// in a select) if fsnotify failed to initialize.
func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

// reload loads and validates the config file, and only on success swaps in
// the new snapshot and rebinds changed listeners: parse the new
// configuration, and on failure keep the old snapshot running.
func (s *Supervisor) reload(ctx context.Context) error {
	snap, opts, err := config.ReloadInto(s.store, s.configPath, s.adapterName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()

	s.rebindEndpoints(ctx, snap, opts)

	for _, p := range s.reloadParticipants {
		p.OnReload(snap, opts)
	}
	return nil
}

// rebindEndpoints binds any endpoint address newly required by snap, and
// signals a graceful drain for any endpoint no longer present.
func (s *Supervisor) rebindEndpoints(ctx context.Context, snap *config.Snapshot, opts config.ServerOptions) {
	wanted := s.buildEndpoint(snap, opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]*listener.Endpoint, len(wanted))
	for _, ep := range wanted {
		if existing, ok := s.endpoints[ep.Address]; ok {
			keep[ep.Address] = existing
			continue
		}
		if err := ep.Listen(); err != nil {
			log.WithError(err).WithField("address", ep.Address).Warn("failed to bind new endpoint")
			continue
		}
		go func(e *listener.Endpoint) {
			if err := e.Serve(ctx, s.handler); err != nil {
				log.WithError(err).WithField("address", e.Address).Warn("endpoint accept loop exited")
			}
		}(ep)
		keep[ep.Address] = ep
	}

	for addr, existing := range s.endpoints {
		if _, stillWanted := keep[addr]; !stillWanted {
			go drainEndpoint(existing)
		}
	}

	s.endpoints = keep
}

func drainEndpoint(ep *listener.Endpoint) {
	if err := ep.Close(); err != nil {
		log.WithError(err).WithField("address", ep.Address).Warn("error closing obsolete endpoint")
	}
}

func (s *Supervisor) drainAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wg sync.WaitGroup
	for _, ep := range s.endpoints {
		wg.Add(1)
		go func(e *listener.Endpoint) {
			defer wg.Done()
			drainEndpoint(e)
		}(ep)
	}
	wg.Wait()
}

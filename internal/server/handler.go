package server

import (
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ferronweb/ferron/internal/acme/challenge"
	"github.com/ferronweb/ferron/internal/config"
	"github.com/ferronweb/ferron/internal/logging"
	"github.com/ferronweb/ferron/internal/metrics"
	"github.com/ferronweb/ferron/internal/pipeline"
	"github.com/ferronweb/ferron/internal/protocol"
	"github.com/ferronweb/ferron/internal/tlsresolver"
)

var log = logging.Root("server")
var accessLog = logging.Root("accesslog")
var accessLogFormat = logging.NewAccessLogFormatter("")

// dispatchState is the registry/options pair rebuilt on every reload;
// Server swaps it atomically so in-flight requests never observe a
// half-updated pair.
type dispatchState struct {
	registry *pipeline.Registry
	opts     config.ServerOptions
}

// Server is the top-level request dispatcher and the supervisor's
// ReloadParticipant: it resolves each request's EffectivePolicy against the
// current snapshot and runs it through the module pipeline.
type Server struct {
	store    *config.Store
	resolver *tlsresolver.Resolver
	metrics  *metrics.Sink
	http01   *challenge.HTTP01Solver

	state atomic.Pointer[dispatchState]
}

// NewServer wires a Server around the shared collaborators; OnReload (called
// once for the initial load and again on every successful reload) is what
// actually populates dispatchState, so the zero-value Server has no registry
// until the first reload completes.
func NewServer(resolver *tlsresolver.Resolver, sink *metrics.Sink, http01 *challenge.HTTP01Solver) *Server {
	return &Server{resolver: resolver, metrics: sink, http01: http01}
}

// SetStore attaches the config.Store requests are resolved against. Run
// wires this after constructing the supervisor, since the supervisor owns
// the Store's lifetime but Server.buildEndpoints must already exist to hand
// the supervisor a bound EndpointBuilder.
func (s *Server) SetStore(store *config.Store) { s.store = store }

// OnReload implements supervisor.ReloadParticipant: it rebuilds the module
// registry against the freshly decoded ServerOptions and swaps it in without
// ever holding a lock the reload path also needs, satisfying the
// deadlock-avoidance invariant on ReloadParticipant.OnReload.
func (s *Server) OnReload(snap *config.Snapshot, opts config.ServerOptions) {
	s.state.Store(&dispatchState{registry: buildRegistry(opts), opts: opts})
}

// ServeHTTP is the Handler every protocol layer (HTTP/1, HTTP/2, HTTP/3)
// ultimately terminates into.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.http01 != nil && s.http01.ServeHTTP(w, r) {
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	requestID := protocol.NewRequestID()

	snap := s.store.Current()
	st := s.state.Load()
	if snap == nil || st == nil {
		http.Error(rec, "service not yet configured", http.StatusServiceUnavailable)
		s.logAccess(r, rec, start, requestID)
		return
	}

	policy, err := snap.Matcher.Resolve(buildMatchRequest(r))
	if err != nil {
		http.NotFound(rec, r)
		s.logAccess(r, rec, start, requestID)
		return
	}

	chain := pipeline.Chain(policy, st.registry)
	sinks := pipeline.Sinks{Log: logging.Root("request"), Metrics: s.metrics}

	ctx := protocol.WithRequestID(r.Context(), requestID)
	ctx = protocol.WithStartTime(ctx, start)
	ctx = protocol.WithProtoVersion(ctx, r.Proto)

	handler := protocol.RequestTimeoutHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := pipeline.Run(r.Context(), w, r, chain, policy, sinks); err != nil {
			log.WithError(err).WithField("request_id", requestID).WithField("path", r.URL.Path).Warn("pipeline run returned an error")
		}
	}), st.opts.RequestTimeout)

	handler.ServeHTTP(rec, r.WithContext(ctx))
	s.logAccess(r, rec, start, requestID)
}

func (s *Server) logAccess(r *http.Request, rec *statusRecorder, start time.Time, requestID string) {
	entry := logging.AccessLogEntry{
		RequestID:     requestID,
		ClientIP:      clientIP(r),
		Method:        r.Method,
		PathAndQuery:  pathAndQuery(r),
		ProtoVersion:  r.Proto,
		StatusCode:    rec.status,
		ContentLength: rec.written,
		Timestamp:     start,
		Headers:       r.Header,
	}
	accessLog.Info(accessLogFormat.Format(entry))
}

func buildMatchRequest(r *http.Request) *config.MatchRequest {
	sni := ""
	if r.TLS != nil {
		sni = r.TLS.ServerName
	}
	return &config.MatchRequest{
		SNI:      sni,
		Host:     r.Host,
		RemoteIP: remoteIP(r),
		Port:     localPort(r),
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.RawQuery,
		Headers:  lowerHeaderKeys(r.Header),
	}
}

// lowerHeaderKeys re-keys a header map to lower-case, matching the
// lower-cased lookup evaluateSubcondition's "header" predicate does;
// net/http canonicalizes header keys (e.g. "Content-Type"), so the matcher
// would otherwise never find a match against its lower-cased directive key.
func lowerHeaderKeys(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}

func pathAndQuery(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func remoteIP(r *http.Request) string { return clientIP(r) }

// localPort reads the actual bind-side port net/http tags onto every
// request's context via LocalAddrContextKey, falling back to a TLS/
// plaintext guess only if that's somehow absent (e.g. a handler invoked
// directly from a test without going through a real net/http.Server).
func localPort(r *http.Request) string {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if _, port, err := net.SplitHostPort(addr.String()); err == nil {
			return port
		}
	}
	if r.TLS != nil {
		return "443"
	}
	if i := strings.LastIndexByte(r.Host, ':'); i >= 0 {
		return r.Host[i+1:]
	}
	return "80"
}

// statusRecorder captures the status/byte count the access log needs
// without buffering the body, unlike httpcache's responseRecorder.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

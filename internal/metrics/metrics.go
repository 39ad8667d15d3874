// Package metrics wires prometheus/client_golang registrations behind the
// small MetricsSink contract internal/pipeline modules depend on, so the
// pipeline package itself never imports a metrics library directly.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink implements pipeline.MetricsSink over a dedicated prometheus
// Registry, with per-name counter/histogram vectors created lazily on
// first use since module names/labels aren't known until config load.
type Sink struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

func New() *Sink {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Sink{
		registry:   reg,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

// Handler returns the http.Handler that exposes the registry in the
// Prometheus text exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// IncCounter implements pipeline.MetricsSink.
func (s *Sink) IncCounter(name string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.counters[name]
	if !ok {
		vec = promauto.With(s.registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ferron_" + name + "_total",
			Help: "Counter " + name + ", registered by the pipeline module that reported it.",
		}, labelNames(labels))
		s.counters[name] = vec
	}
	vec.With(prometheus.Labels(labels)).Inc()
}

// ObserveHistogram implements pipeline.MetricsSink.
func (s *Sink) ObserveHistogram(name string, labels map[string]string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.histograms[name]
	if !ok {
		vec = promauto.With(s.registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ferron_" + name,
			Help:    "Histogram " + name + ", registered by the pipeline module that reported it.",
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels))
		s.histograms[name] = vec
	}
	vec.With(prometheus.Labels(labels)).Observe(value)
}

func labelNames(labels map[string]string) []string {
	out := make([]string, 0, len(labels))
	for k := range labels {
		out = append(out, k)
	}
	return out
}

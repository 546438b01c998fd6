// Package metrics provides Prometheus-compatible instrumentation for the
// reprocessing pipeline.
//
// Metrics are registered with a local Prometheus registry and exposed for
// scraping via HTTP; after each pipeline execution a snapshot of the registry
// can additionally be pushed to a VictoriaMetrics/Prometheus remote write
// endpoint, so short-lived one-shot runs leave a trace too.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gauge is a metric holding a single value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	// Add panics if the value is negative.
	Add(float64)
}

// GaugeVec is a Gauge with labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates and registers metrics.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}

// ScrapeRegistry is the Registry implementation backing the /metrics
// endpoint. It also serves as the source for remote write pushes, see
// Pusher.
type ScrapeRegistry struct {
	prom *prometheus.Registry
}

// NewScrapeRegistry creates a registry preloaded with the standard Go and
// process collectors.
func NewScrapeRegistry() (*ScrapeRegistry, error) {
	r := &ScrapeRegistry{prom: prometheus.NewRegistry()}

	if err := r.register(collectors.NewGoCollector(), "collector", "go"); err != nil {
		return nil, err
	}
	if err := r.register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "collector", "process"); err != nil {
		return nil, err
	}

	return r, nil
}

// Handler returns the http.Handler for the /metrics endpoint.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer exposes the underlying registry for snapshotting.
func (r *ScrapeRegistry) Gatherer() prometheus.Gatherer {
	return r.prom
}

func (r *ScrapeRegistry) register(c prometheus.Collector, kind, name string) error {
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("register %s %q: %w", kind, name, err)
	}
	return nil
}

// NewGauge creates and registers a new Gauge.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	g := prometheus.NewGauge(opts)
	if err := r.register(g, "gauge", opts.Name); err != nil {
		return nil, err
	}
	return promGauge{g}, nil
}

// NewGaugeVec creates and registers a new GaugeVec.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	g := prometheus.NewGaugeVec(opts, labels)
	if err := r.register(g, "gauge vec", opts.Name); err != nil {
		return nil, err
	}
	return promGaugeVec{g}, nil
}

// NewCounter creates and registers a new Counter.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	c := prometheus.NewCounter(opts)
	if err := r.register(c, "counter", opts.Name); err != nil {
		return nil, err
	}
	return promCounter{c}, nil
}

// NewCounterVec creates and registers a new CounterVec.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	c := prometheus.NewCounterVec(opts, labels)
	if err := r.register(c, "counter vec", opts.Name); err != nil {
		return nil, err
	}
	return promCounterVec{c}, nil
}

type promGauge struct{ g prometheus.Gauge }

func (w promGauge) Set(v float64) { w.g.Set(v) }

type promGaugeVec struct{ g *prometheus.GaugeVec }

func (w promGaugeVec) With(labels prometheus.Labels) Gauge {
	return promGauge{w.g.With(labels)}
}

type promCounter struct{ c prometheus.Counter }

func (w promCounter) Inc()          { w.c.Inc() }
func (w promCounter) Add(v float64) { w.c.Add(v) }

type promCounterVec struct{ c *prometheus.CounterVec }

func (w promCounterVec) With(labels prometheus.Labels) Counter {
	return promCounter{w.c.With(labels)}
}

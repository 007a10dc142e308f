// Package observability exposes prometheus instruments for the
// analysis service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the analysis instruments on a private registry, so
// repeated construction in tests cannot hit collector conflicts.
type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal *prometheus.CounterVec
	WarningsTotal prometheus.Counter
	QueueLength   prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cellsentry_analyses_total",
			Help: "Completed capture analyses by outcome.",
		}, []string{"outcome"}),
		WarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cellsentry_analysis_warnings_total",
			Help: "Capture analyses that detected at least one warning.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cellsentry_analysis_queue_length",
			Help: "Captures currently waiting for analysis.",
		}),
	}

	registry.MustRegister(m.AnalysesTotal, m.WarningsTotal, m.QueueLength)
	return m
}

// Handler serves the /metrics scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

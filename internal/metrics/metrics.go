// Package metrics exposes Prometheus instrumentation for the feed, the
// derived views and removals.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/aislemap/internal/models"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	registry  *prometheus.Registry
	snapshots *prometheus.CounterVec
	documents *prometheus.GaugeVec
	removals  *prometheus.CounterVec
	visible   prometheus.Gauge
	grouped   prometheus.Gauge
	unmatched prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aislemap",
			Name:      "feed_snapshots_total",
			Help:      "Snapshots applied per collection.",
		}, []string{"collection"}),
		documents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "aislemap",
			Name:      "feed_documents",
			Help:      "Documents in the latest snapshot per collection.",
		}, []string{"collection"}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aislemap",
			Name:      "removals_total",
			Help:      "Resolved removals by final state.",
		}, []string{"state"}),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aislemap",
			Name:      "visible_markers",
			Help:      "Markers in the current view.",
		}),
		grouped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aislemap",
			Name:      "grouped_entries",
			Help:      "Grouped selection entries in the current view.",
		}),
		unmatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aislemap",
			Name:      "unmatched_categories",
			Help:      "Selected categories without a marker.",
		}),
	}
	m.registry.MustRegister(
		m.snapshots, m.documents, m.removals,
		m.visible, m.grouped, m.unmatched,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SnapshotApplied counts one applied snapshot.
func (m *Metrics) SnapshotApplied(collection string, documents int) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(collection).Inc()
	m.documents.WithLabelValues(collection).Set(float64(documents))
}

// RemovalResolved counts one resolved removal.
func (m *Metrics) RemovalResolved(state string) {
	if m == nil {
		return
	}
	m.removals.WithLabelValues(state).Inc()
}

// ObserveView updates the view gauges.
func (m *Metrics) ObserveView(v models.View) {
	if m == nil {
		return
	}
	m.visible.Set(float64(len(v.Visible)))
	m.grouped.Set(float64(len(v.Grouped)))
	m.unmatched.Set(float64(len(v.Unmatched)))
}

// Package metrics exposes the discovery worker's health as Prometheus
// gauges and counters, grounded on the teacher's
// pkg/monitoring/prometheus.Client/pkg/monitoring/collector.Collector
// pairing -- but inverted: the teacher's Collector polls an external
// Prometheus server for chaos-test analysis, while this package is the
// thing a Prometheus server scrapes, so it builds on
// client_golang/prometheus's registration side instead of its v1 query
// API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the discovery worker and UID/PID
// registry report, mirroring the field-per-concern layout of the
// teacher's collector.Collector (one struct owning everything a
// component needs to instrument itself).
type Collector struct {
	registry *prometheus.Registry

	KnownInstances     *prometheus.GaugeVec
	WatchCount         prometheus.Gauge
	WorkerWakeTotal    prometheus.Counter
	WorkerWakeDuration prometheus.Histogram
	RegisteredTotal    prometheus.Counter
	TableFullTotal     prometheus.Counter
}

// New constructs a Collector with a fresh registry and registers every
// metric. Call Handler to mount the expositor on an HTTP server.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		KnownInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "commgmt_discovery_known_instances",
			Help: "Number of instances currently known to the discovery client, by quality level.",
		}, []string{"quality"}),
		WatchCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commgmt_discovery_watch_count",
			Help: "Number of filesystem watches currently installed by the discovery client.",
		}),
		WorkerWakeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commgmt_discovery_worker_wake_total",
			Help: "Number of times the discovery worker goroutine has woken to process a batch of events.",
		}),
		WorkerWakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commgmt_discovery_worker_wake_duration_seconds",
			Help:    "Time spent processing one batch of watch events.",
			Buckets: prometheus.DefBuckets,
		}),
		RegisteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commgmt_uidpid_registered_total",
			Help: "Number of successful UID/PID registrations.",
		}),
		TableFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commgmt_uidpid_table_full_total",
			Help: "Number of RegisterPid calls that failed because the table was full.",
		}),
	}

	reg.MustRegister(
		c.KnownInstances,
		c.WatchCount,
		c.WorkerWakeTotal,
		c.WorkerWakeDuration,
		c.RegisteredTotal,
		c.TableFullTotal,
	)
	return c
}

// Handler returns the http.Handler that serves this Collector's
// registry in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

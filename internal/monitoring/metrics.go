package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the archive cache.
type Metrics struct {
	// Archive lifecycle metrics
	InstallsTotal   prometheus.Counter
	InstallFailures prometheus.Counter
	RemovalsTotal   prometheus.Counter
	ArchivesLive    prometheus.Gauge

	// Recovery metrics
	RecoveredTotal prometheus.Counter
	RecoverySkips  prometheus.Counter

	// I/O metrics
	BytesCopied  prometheus.Counter
	CopyDuration prometheus.Histogram

	registry  *prometheus.Registry
	startTime time.Time
}

// NewMetrics creates a metrics collector backed by its own registry so
// multiple caches in one process never collide on registration.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry:  registry,
		startTime: time.Now(),

		InstallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modvault_installs_total",
			Help: "Total number of successful archive installs",
		}),
		InstallFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "modvault_install_failures_total",
			Help: "Total number of failed archive installs",
		}),
		RemovalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modvault_removals_total",
			Help: "Total number of archive removals",
		}),
		ArchivesLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "modvault_archives_live",
			Help: "Number of archives currently tracked by the cache",
		}),
		RecoveredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modvault_recovered_total",
			Help: "Archives reconstructed from disk during startup recovery",
		}),
		RecoverySkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "modvault_recovery_skips_total",
			Help: "Archive directories skipped during recovery because reconstruction failed",
		}),
		BytesCopied: factory.NewCounter(prometheus.CounterOpts{
			Name: "modvault_bytes_copied_total",
			Help: "Bytes materialized from install streams",
		}),
		CopyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "modvault_copy_duration_seconds",
			Help:    "Install stream materialization duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}

// Registry exposes the underlying registry for scrape wiring.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Uptime returns time elapsed since the collector was created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

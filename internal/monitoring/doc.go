// Package monitoring provides Prometheus metrics for the archive cache:
// install/removal counters, a live-archive gauge, recovery outcomes, and
// stream copy throughput. The collector owns a private registry so several
// cache instances can carry metrics side by side.
package monitoring

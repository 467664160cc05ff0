// Package telemetry provides logging setup and Prometheus metrics for addonhub.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served by the
// side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<ADH_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Upload outcomes for archives and icons
//   - Package download counter
//   - Compensating rollbacks and orphan reconciliation
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (e.g. /api/v1/packages/:id) rather than the raw URL, and no
// metric is labelled by package id or name.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// Upload bodies can be up to 200MB, hence the long tail buckets.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)
)

// Ingestion metrics, recorded by the package service.
//
// AddonUploadsTotal has labels {kind, result}: kind is "archive" or "icon", result is
// "success", "rejected" (validation failed before any write) or "error" (storage failure).
//
// IngestCompensationsTotal counts the rollbacks that run when a create cannot persist its
// archive or an update cannot write its catalog row. result is "success" or "error"; an
// "error" on create leaves an orphan for the reconciler.
//
// Example PromQL queries:
//   - Rejection ratio:  sum(rate(addon_uploads_total{result="rejected"}[1h])) / sum(rate(addon_uploads_total[1h]))
//   - Alert:            increase(ingest_compensations_total{result="error"}[1h]) > 0
var (
	AddonUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_uploads_total",
			Help: "Total number of archive and icon uploads, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	IngestCompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_compensations_total",
			Help: "Total number of compensating rollbacks after a failed create or update, by result.",
		},
		[]string{"result"},
	)

	SVGIconsSanitizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "svg_icons_sanitized_total",
			Help: "Total number of SVG icons that had content removed by the sanitizer.",
		},
	)
)

// PackageDownloadsTotal is incremented once per recorded download.
var PackageDownloadsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "package_downloads_total",
		Help: "Total number of package archive downloads recorded.",
	},
)

// OrphanPackagesReconciledTotal counts placeholder rows removed by the orphan reconciler.
// A steadily rising value means uploads are being interrupted between row creation and
// archive persistence.
var OrphanPackagesReconciledTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "orphan_packages_reconciled_total",
		Help: "Total number of placeholder package rows removed by the orphan reconciler.",
	},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector rather than per request.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <ADH_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every interval until ctx is done or
// the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}

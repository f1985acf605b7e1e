/*
Package metrics provides Prometheus metrics collection and exposition for custodian.

The metrics package defines and registers custodian's metrics using the
Prometheus client library, covering the catalog, retention evaluation,
backup and WAL deletion, and object store requests. Metrics are exposed
via an HTTP endpoint for scraping by Prometheus servers.

# Architecture

All metrics are package-level variables registered with the Prometheus
default registry in init(). The CLI's --metrics-addr flag starts an HTTP
server that serves Handler() at /metrics in the Prometheus text
exposition format, next to the /health, /ready and /live endpoints.

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Example: backups known to the catalog, by status
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: WALs deleted total, store errors total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: store request duration, deletion duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Catalog Metrics:

custodian_backups_total{server, status}:
  - Type: Gauge
  - Variable: BackupsTotal
  - Description: Backups known to the catalog, by status; Collector
    refreshes it every 15 seconds

custodian_catalog_list_duration_seconds{server}:
  - Type: Histogram
  - Variable: CatalogListDuration
  - Description: Time taken to rebuild the catalog's backup listing

Retention Metrics:

custodian_retention_evaluations_total{server, verdict}:
  - Type: Counter
  - Variable: RetentionEvaluationsTotal
  - Description: Retention verdicts issued, by verdict

Deletion Metrics:

custodian_backups_deleted_total{server, outcome}:
  - Type: Counter
  - Variable: BackupsDeletedTotal

custodian_deletion_duration_seconds{server}:
  - Type: Histogram
  - Variable: DeletionDuration

custodian_wals_deleted_total{server}:
  - Type: Counter
  - Variable: WalsDeletedTotal

custodian_wal_prefixes_deleted_total{server}:
  - Type: Counter
  - Variable: WalPrefixesDeletedTotal

Object Store Metrics:

custodian_store_request_duration_seconds{backend, operation}:
  - Type: Histogram
  - Variable: StoreRequestDuration

custodian_store_errors_total{backend, operation}:
  - Type: Counter
  - Variable: StoreErrorsTotal

# Health

RegisterComponent and UpdateComponent record one component's health.
GetHealth reports "healthy" unless a registered component is unhealthy,
in which case it reports "unhealthy". GetReadiness reports "ready" only
when the critical components "objectstore" and "catalog" are registered
and healthy, and "not_ready" otherwise. HealthHandler, ReadyHandler and
LivenessHandler serve these as JSON.

# Usage

Updating Counter Metrics:

	import "github.com/cuemby/custodian/pkg/metrics"

	metrics.WalsDeletedTotal.WithLabelValues("mydb").Add(3)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.DeletionDuration, "mydb")

Exposing the Endpoint:

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - cmd/custodian: serves /metrics and the health endpoints, starts
    Collector, and records backup-list and backup-delete metrics
  - pkg/retention: counts retention verdicts
  - pkg/deletion: counts deleted WALs and WAL prefixes
  - pkg/objectstore/s3: times store requests and counts their failures
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any custodian package
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Total: ~1-5MB for a typical custodian process

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: status, verdict, outcome, operation (< 10 values)
  - Medium cardinality: server (< 100 values)
  - Avoid: backup IDs, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Catalog:
  - Backups by status: custodian_backups_total

Deletion:
  - WAL deletion rate: rate(custodian_wals_deleted_total[1h])
  - WAL prefix deletion rate: rate(custodian_wal_prefixes_deleted_total[1h])

Object Store:
  - p95 request latency: histogram_quantile(0.95, rate(custodian_store_request_duration_seconds_bucket[5m]))
  - Error rate: rate(custodian_store_errors_total[5m])

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics

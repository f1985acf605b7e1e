package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog metrics
	BackupsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custodian_backups_total",
			Help: "Total number of backups known to the catalog, by server and status",
		},
		[]string{"server", "status"},
	)

	CatalogListDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodian_catalog_list_duration_seconds",
			Help:    "Time taken to rebuild the catalog's backup listing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	// Retention metrics
	RetentionEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_retention_evaluations_total",
			Help: "Total number of retention policy evaluations, by verdict",
		},
		[]string{"server", "verdict"},
	)

	// Deletion metrics
	BackupsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_backups_deleted_total",
			Help: "Total number of backups deleted, by server and outcome",
		},
		[]string{"server", "outcome"},
	)

	DeletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodian_deletion_duration_seconds",
			Help:    "Time taken to delete a single backup, including WAL cleanup",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	WalsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_wals_deleted_total",
			Help: "Total number of WAL objects deleted during WAL cleanup, by server",
		},
		[]string{"server"},
	)

	WalPrefixesDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_wal_prefixes_deleted_total",
			Help: "Total number of WAL hash-dir prefixes deleted in one request, by server",
		},
		[]string{"server"},
	)

	// Store metrics
	StoreRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodian_store_request_duration_seconds",
			Help:    "ObjectStore request duration in seconds, by backend and operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_store_errors_total",
			Help: "Total ObjectStore request failures, by backend and operation",
		},
		[]string{"backend", "operation"},
	)
)

func init() {
	prometheus.MustRegister(BackupsTotal)
	prometheus.MustRegister(CatalogListDuration)
	prometheus.MustRegister(RetentionEvaluationsTotal)
	prometheus.MustRegister(BackupsDeletedTotal)
	prometheus.MustRegister(DeletionDuration)
	prometheus.MustRegister(WalsDeletedTotal)
	prometheus.MustRegister(WalPrefixesDeletedTotal)
	prometheus.MustRegister(StoreRequestDuration)
	prometheus.MustRegister(StoreErrorsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

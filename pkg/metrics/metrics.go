/*
Package metrics exposes Prometheus instrumentation for the engine:
commit throughput, active transactions, listen targets, and query
volume, plus a Timer helper for latency histograms.

Every metric is a package-level var registered once in init(), exposed
through Handler() for a "/metrics" endpoint.
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "firestash_documents_total",
			Help: "Total number of live documents across all collections",
		},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firestash_commits_total",
			Help: "Total number of committed write batches by outcome",
		},
		[]string{"outcome"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "firestash_commit_duration_seconds",
			Help:    "Time taken to apply a committed write batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	TransactionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "firestash_transactions_active",
			Help: "Number of transactions currently Active",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firestash_transactions_total",
			Help: "Total number of transactions by terminal state",
		},
		[]string{"state"},
	)

	ListenTargetsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "firestash_listen_targets_active",
			Help: "Number of live listen targets",
		},
	)

	ListenReevaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "firestash_listen_reevaluation_duration_seconds",
			Help:    "Time taken to re-evaluate one listen target against a batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firestash_queries_total",
			Help: "Total number of queries run by kind",
		},
		[]string{"kind"}, // "collection", "collection_group", "find_nearest"
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firestash_query_duration_seconds",
			Help:    "Query evaluation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	TriggerDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firestash_trigger_dispatch_total",
			Help: "Total number of trigger change events dispatched by kind",
		},
		[]string{"kind"},
	)

	TriggerSubscriberPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "firestash_trigger_subscriber_panics_total",
			Help: "Total number of trigger subscriber handler panics recovered",
		},
	)
)

func init() {
	prometheus.MustRegister(DocumentsTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(TransactionsActive)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(ListenTargetsActive)
	prometheus.MustRegister(ListenReevaluationDuration)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(TriggerDispatchTotal)
	prometheus.MustRegister(TriggerSubscriberPanicsTotal)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

var (
	storeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstore_store_calls_total",
			Help: "Backing store calls by operation, table and outcome",
		},
		[]string{"op", "table", "outcome"},
	)

	storeCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentstore_store_call_duration_seconds",
			Help:    "Backing store call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "table"},
	)

	consumedCapacityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstore_consumed_capacity_total",
			Help: "Capacity units reported as consumed by the store",
		},
		[]string{"table"},
	)

	pagerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstore_pager_pages_total",
			Help: "Pages fetched by throttled traversals",
		},
		[]string{"name"},
	)

	pagerThrottleWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentstore_pager_throttle_wait_seconds",
			Help:    "Time spent waiting between store calls of a traversal",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"name"},
	)

	filterRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstore_filter_rejected_total",
			Help: "Point reads rejected by a filter",
		},
		[]string{"op"},
	)
)

// Outcome labels of a store call.
const (
	OutcomeOK              = "ok"
	OutcomeConditionFailed = "condition_failed"
	OutcomeError           = "error"
)

// RecordStoreCall records one backing store call.
func RecordStoreCall(op, table, outcome string, duration time.Duration, capacity float64) {
	storeCallsTotal.WithLabelValues(op, table, outcome).Inc()
	storeCallDuration.WithLabelValues(op, table).Observe(duration.Seconds())
	if capacity > 0 {
		consumedCapacityTotal.WithLabelValues(table).Add(capacity)
	}
}

// Observer feeds pager and filter events into the collectors. It satisfies
// the observer interfaces of the pager and content packages.
type Observer struct{}

// NewObserver returns an Observer.
func NewObserver() Observer { return Observer{} }

// PageFetched counts a fetched page.
func (Observer) PageFetched(name string, _ document.PageStats, _ time.Duration) {
	pagerPagesTotal.WithLabelValues(name).Inc()
}

// Throttled records a wait between store calls.
func (Observer) Throttled(name string, wait time.Duration) {
	pagerThrottleWait.WithLabelValues(name).Observe(wait.Seconds())
}

// FilterRejected counts a filtered-out point read.
func (Observer) FilterRejected(op string) {
	filterRejectedTotal.WithLabelValues(op).Inc()
}

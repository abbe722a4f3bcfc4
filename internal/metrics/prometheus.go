package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the hinted handoff manager.
type Metrics struct {
	// Hint creation / storage
	HintsCreatedTotal    prometheus.CounterVec
	HintsNotStoredTotal  prometheus.CounterVec
	HintStoreSizeBytes   prometheus.Gauge
	TombstonesPendingGC  prometheus.Gauge

	// Delivery session lifecycle
	SessionsStartedTotal  prometheus.Counter
	SessionsAbortedTotal  prometheus.CounterVec
	SessionsCompletedTotal prometheus.Counter
	SessionsInFlight      prometheus.Gauge
	SessionDuration        prometheus.Histogram

	// Paging / replay
	RowsReplayedTotal   prometheus.CounterVec
	PageSize            prometheus.Histogram
	AcksPendingPerPage   prometheus.Histogram
	WriteTimeoutsTotal   prometheus.CounterVec

	// Rate limiting
	RateLimiterTokensAvailable prometheus.Gauge
	RateLimiterWaitDuration    prometheus.Histogram

	// Worker pool
	WorkerPoolActiveWorkers prometheus.Gauge
	WorkerPoolQueueDepth    prometheus.Gauge
	WorkerPoolRejectedTotal prometheus.Counter

	// Schema agreement
	SchemaAgreementTimeoutsTotal prometheus.Counter
	SchemaAgreementWaitDuration  prometheus.Histogram

	// Scheduler
	SweepsTotal            prometheus.Counter
	PendingTargetsDiscovered prometheus.Gauge

	// Management
	PausedGauge prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics for this node.
func NewMetrics(nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		HintsCreatedTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "hints",
			Name:        "created_total",
			Help:        "Total number of hints written to the store, by target",
			ConstLabels: labels,
		}, []string{"target_id"}),
		HintsNotStoredTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "hints",
			Name:        "not_stored_total",
			Help:        "Total number of hints rejected before storage or discarded at replay without delivery, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		HintStoreSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "hints",
			Name:        "store_size_bytes",
			Help:        "Current on-disk size of the hint store",
			ConstLabels: labels,
		}),
		TombstonesPendingGC: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "hints",
			Name:        "tombstones_pending_gc",
			Help:        "Current number of tombstone rows awaiting compaction",
			ConstLabels: labels,
		}),

		SessionsStartedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "session",
			Name:        "started_total",
			Help:        "Total number of delivery sessions started",
			ConstLabels: labels,
		}),
		SessionsAbortedTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "session",
			Name:        "aborted_total",
			Help:        "Total number of delivery sessions aborted, by reason code",
			ConstLabels: labels,
		}, []string{"reason"}),
		SessionsCompletedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "session",
			Name:        "completed_total",
			Help:        "Total number of delivery sessions that ran to completion",
			ConstLabels: labels,
		}),
		SessionsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "session",
			Name:        "in_flight",
			Help:        "Current number of delivery sessions in flight",
			ConstLabels: labels,
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "session",
			Name:        "duration_seconds",
			Help:        "Histogram of delivery session durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}),

		RowsReplayedTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "replay",
			Name:        "rows_replayed_total",
			Help:        "Total number of hint rows successfully replayed, by target",
			ConstLabels: labels,
		}, []string{"target_id"}),
		PageSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "replay",
			Name:        "page_size",
			Help:        "Histogram of computed page sizes",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(2, 8, 16),
		}),
		AcksPendingPerPage: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "replay",
			Name:        "acks_pending_per_page",
			Help:        "Histogram of outstanding acks per drained page",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(0, 8, 16),
		}),
		WriteTimeoutsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "replay",
			Name:        "write_timeouts_total",
			Help:        "Total number of per-row write timeouts, by target",
			ConstLabels: labels,
		}, []string{"target_id"}),

		RateLimiterTokensAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "ratelimiter",
			Name:        "tokens_available",
			Help:        "Current estimate of available rate limiter tokens",
			ConstLabels: labels,
		}),
		RateLimiterWaitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "ratelimiter",
			Name:        "wait_duration_seconds",
			Help:        "Histogram of time spent waiting for rate limiter tokens",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		WorkerPoolActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "workerpool",
			Name:        "active_workers",
			Help:        "Current number of active delivery workers",
			ConstLabels: labels,
		}),
		WorkerPoolQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "workerpool",
			Name:        "queue_depth",
			Help:        "Current depth of the delivery work queue",
			ConstLabels: labels,
		}),
		WorkerPoolRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "workerpool",
			Name:        "rejected_total",
			Help:        "Total number of delivery tasks rejected because a target already had a session in flight",
			ConstLabels: labels,
		}),

		SchemaAgreementTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "schema",
			Name:        "agreement_timeouts_total",
			Help:        "Total number of times waiting for schema agreement timed out",
			ConstLabels: labels,
		}),
		SchemaAgreementWaitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "schema",
			Name:        "agreement_wait_duration_seconds",
			Help:        "Histogram of time spent waiting for schema agreement",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		SweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "scheduler",
			Name:        "sweeps_total",
			Help:        "Total number of periodic sweeps for pending targets",
			ConstLabels: labels,
		}),
		PendingTargetsDiscovered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "scheduler",
			Name:        "pending_targets_discovered",
			Help:        "Number of distinct targets with pending hints as of the last sweep",
			ConstLabels: labels,
		}),

		PausedGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hintedhandoff",
			Subsystem:   "manager",
			Name:        "paused",
			Help:        "1 if hint delivery is currently paused, 0 otherwise",
			ConstLabels: labels,
		}),
	}
}

// RecordHintCreated records a hint write to the store for target.
func (m *Metrics) RecordHintCreated(targetID string) {
	m.HintsCreatedTotal.WithLabelValues(targetID).Inc()
}

// RecordHintNotStored records a hint that was not persisted, or a stored hint
// discarded at replay without being delivered, tagged with reason.
func (m *Metrics) RecordHintNotStored(reason string) {
	m.HintsNotStoredTotal.WithLabelValues(reason).Inc()
}

// RecordSessionStart marks the start of a delivery session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStartedTotal.Inc()
	m.SessionsInFlight.Inc()
}

// RecordSessionAbort marks the abort of a delivery session for reason.
func (m *Metrics) RecordSessionAbort(reason string, durationSeconds float64) {
	m.SessionsAbortedTotal.WithLabelValues(reason).Inc()
	m.SessionsInFlight.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionComplete marks a delivery session running to completion.
func (m *Metrics) RecordSessionComplete(durationSeconds float64) {
	m.SessionsCompletedTotal.Inc()
	m.SessionsInFlight.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordRowsReplayed records successfully replayed rows for target.
func (m *Metrics) RecordRowsReplayed(targetID string, count int) {
	m.RowsReplayedTotal.WithLabelValues(targetID).Add(float64(count))
}

// RecordPage records the size of a page drained during delivery.
func (m *Metrics) RecordPage(size int, pendingAcks int) {
	m.PageSize.Observe(float64(size))
	m.AcksPendingPerPage.Observe(float64(pendingAcks))
}

// RecordWriteTimeout records a per-row write timeout for target.
func (m *Metrics) RecordWriteTimeout(targetID string) {
	m.WriteTimeoutsTotal.WithLabelValues(targetID).Inc()
}

// UpdateRateLimiterStats updates rate limiter gauges.
func (m *Metrics) UpdateRateLimiterStats(tokensAvailable float64) {
	m.RateLimiterTokensAvailable.Set(tokensAvailable)
}

// RecordRateLimiterWait records time spent waiting for a token.
func (m *Metrics) RecordRateLimiterWait(durationSeconds float64) {
	m.RateLimiterWaitDuration.Observe(durationSeconds)
}

// UpdateWorkerPoolStats updates worker pool gauges.
func (m *Metrics) UpdateWorkerPoolStats(activeWorkers, queueDepth int) {
	m.WorkerPoolActiveWorkers.Set(float64(activeWorkers))
	m.WorkerPoolQueueDepth.Set(float64(queueDepth))
}

// RecordWorkerPoolRejection records a rejected delivery task.
func (m *Metrics) RecordWorkerPoolRejection() {
	m.WorkerPoolRejectedTotal.Inc()
}

// RecordSchemaAgreementTimeout records a schema agreement wait timing out.
func (m *Metrics) RecordSchemaAgreementTimeout(waitSeconds float64) {
	m.SchemaAgreementTimeoutsTotal.Inc()
	m.SchemaAgreementWaitDuration.Observe(waitSeconds)
}

// RecordSchemaAgreementWait records a schema agreement wait that succeeded.
func (m *Metrics) RecordSchemaAgreementWait(waitSeconds float64) {
	m.SchemaAgreementWaitDuration.Observe(waitSeconds)
}

// RecordSweep records a completed scheduler sweep and the number of
// distinct targets it found with pending hints.
func (m *Metrics) RecordSweep(pendingTargets int) {
	m.SweepsTotal.Inc()
	m.PendingTargetsDiscovered.Set(float64(pendingTargets))
}

// SetPaused updates the paused gauge.
func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.PausedGauge.Set(1)
	} else {
		m.PausedGauge.Set(0)
	}
}

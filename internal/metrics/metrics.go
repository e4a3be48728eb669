// Package metrics holds the Prometheus instruments for stores and storage
// adapters. Instruments are registered on an explicit registry so tests and
// multiple CLI invocations never collide on the global one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "receiptvault"

// Storage operation outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeSkipped     = "skipped"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Metrics holds all Prometheus metrics for the persistence layer.
type Metrics struct {
	// Store action metrics
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// Storage adapter metrics
	StorageOpsTotal      *prometheus.CounterVec
	StorageOpDuration    *prometheus.HistogramVec
	RowsWrittenTotal     *prometheus.CounterVec
	RowsDeletedTotal     *prometheus.CounterVec
	HydrationsTotal      *prometheus.CounterVec
	WritesCoalescedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "actions_total",
			Help:      "Total number of actions applied to a store",
		}, []string{"store", "action"}),
		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "action_duration_seconds",
			Help:      "Histogram of action durations, listeners excluded",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"store", "action"}),

		StorageOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage adapter operations by outcome",
		}, []string{"table", "op", "outcome"}),
		StorageOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Histogram of storage adapter operation durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "op"}),
		RowsWrittenTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "rows_written_total",
			Help:      "Total number of rows upserted by entity saves",
		}, []string{"table"}),
		RowsDeletedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "rows_deleted_total",
			Help:      "Total number of stale rows removed by entity saves",
		}, []string{"table"}),
		HydrationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "hydrations_total",
			Help:      "Total number of hydrations by result",
		}, []string{"store", "result"}),
		WritesCoalescedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "writes_coalesced_total",
			Help:      "Total number of dirty signals folded into an earlier pending write",
		}, []string{"store"}),
	}
}

// RecordAction records one applied action.
func (m *Metrics) RecordAction(store, action string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(store, action).Inc()
	m.ActionDuration.WithLabelValues(store, action).Observe(d.Seconds())
}

// RecordStorageOp records one storage adapter operation.
func (m *Metrics) RecordStorageOp(table, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StorageOpsTotal.WithLabelValues(table, op, outcome).Inc()
	m.StorageOpDuration.WithLabelValues(table, op).Observe(d.Seconds())
}

// RecordRows records the upserts and deletions of one entity save.
func (m *Metrics) RecordRows(table string, written, deleted int) {
	if m == nil {
		return
	}
	m.RowsWrittenTotal.WithLabelValues(table).Add(float64(written))
	m.RowsDeletedTotal.WithLabelValues(table).Add(float64(deleted))
}

// RecordHydration records the result of one hydration.
func (m *Metrics) RecordHydration(store, result string) {
	if m == nil {
		return
	}
	m.HydrationsTotal.WithLabelValues(store, result).Inc()
}

// RecordCoalesced records a dirty signal that joined a pending write.
func (m *Metrics) RecordCoalesced(store string) {
	if m == nil {
		return
	}
	m.WritesCoalescedTotal.WithLabelValues(store).Inc()
}

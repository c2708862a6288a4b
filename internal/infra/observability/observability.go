// Package observability exposes Prometheus metrics for the reward engine:
// event admissions, ledger activity, level-ups, and queue health.
// The API server serves them on /metrics when enabled.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Metrics ────────────────────────────────────────────────────────────────

var (
	// EventsTotal counts inbound events by type.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glimmer",
		Name:      "events_total",
		Help:      "Inbound activity events by type.",
	}, []string{"type"})

	// AdmissionsRejected counts cooldown-gate rejections by key.
	AdmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glimmer",
		Name:      "admissions_rejected_total",
		Help:      "Cooldown-gate rejections by cooldown key.",
	}, []string{"key"})

	// TransactionsTotal counts committed ledger transactions by kind.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glimmer",
		Name:      "transactions_total",
		Help:      "Committed ledger transactions by kind.",
	}, []string{"kind"})

	// LevelUpsTotal counts level boundaries crossed (one per level, so a
	// multi-level skip increments once per intermediate level).
	LevelUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "glimmer",
		Name:      "level_ups_total",
		Help:      "Level boundaries crossed, one increment per level.",
	})

	// QueueItemsTotal counts queue items reaching a terminal status.
	QueueItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glimmer",
		Name:      "queue_items_total",
		Help:      "Queue items reaching done or failed, by kind and status.",
	}, []string{"kind", "status"})

	// QueueDepth tracks the pending backlog per kind.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "glimmer",
		Name:      "queue_depth",
		Help:      "Pending queue items by kind.",
	}, []string{"kind"})

	// WatchdogFailures counts items the watchdog marked failed.
	WatchdogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "glimmer",
		Name:      "watchdog_failures_total",
		Help:      "Running queue items failed by the stuck-item watchdog.",
	})

	// BatchOperationsTotal counts administrative batch runs by operation.
	BatchOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glimmer",
		Name:      "batch_operations_total",
		Help:      "Administrative batch operations by op.",
	}, []string{"op"})
)

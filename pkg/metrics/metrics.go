package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Backend API client
	BackendOperations *prometheus.CounterVec
	BackendLatency    *prometheus.HistogramVec

	// Queue orchestration
	QueueDepth      *prometheus.GaugeVec
	CallNextLatency *prometheus.HistogramVec
	CallNextEmpty   *prometheus.CounterVec

	// Real-time sync channel
	SyncEventsApplied *prometheus.CounterVec
	SyncEventsStale   prometheus.Counter
	SyncReconnects    prometheus.Counter
	SyncState         prometheus.Gauge

	// Optimistic mutation coordinator
	IntentsCommitted  prometheus.Counter
	IntentsRolledBack prometheus.Counter
	IntentsSuperseded prometheus.Counter

	// Permission & audit gate
	AuditWrites  *prometheus.CounterVec
	AuthDenials  *prometheus.CounterVec
	AuditBacklog prometheus.Gauge
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		BackendOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_operations_total",
			Help:      "Total number of backend API calls",
		}, []string{"operation", "status"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_operation_duration_seconds",
			Help:      "Duration of backend API calls",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),

		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of waiting entries per queue type",
		}, []string{"queue_type"}),
		CallNextLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_next_duration_seconds",
			Help:      "Duration of call-next dequeues including lock acquisition",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"queue_type"}),
		CallNextEmpty: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_next_empty_total",
			Help:      "Total call-next invocations that found no eligible patient",
		}, []string{"queue_type"}),

		SyncEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_applied_total",
			Help:      "Total sync events applied to the local mirror",
		}, []string{"resource", "operation"}),
		SyncEventsStale: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_stale_total",
			Help:      "Total sync events dropped for arriving out of sequence",
		}),
		SyncReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_reconnects_total",
			Help:      "Total reconnect attempts of the sync channel",
		}),
		SyncState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_connection_state",
			Help:      "Sync channel state (0=disconnected 1=connecting 2=connected 3=degraded)",
		}),

		IntentsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_committed_total",
			Help:      "Optimistic intents confirmed by the gateway",
		}),
		IntentsRolledBack: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_rolled_back_total",
			Help:      "Optimistic intents reverted after a failed mutation",
		}),
		IntentsSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_superseded_total",
			Help:      "Optimistic intents overridden by a newer canonical event",
		}),

		AuditWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Total audit entries written",
		}, []string{"result"}),
		AuthDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_denials_total",
			Help:      "Total mutations denied by the permission gate",
		}, []string{"action"}),
		AuditBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_backlog_rows",
			Help:      "Audit rows eligible for retention cleanup",
		}),
	}
}

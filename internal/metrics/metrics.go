package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebase_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bitebase_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"service", "method", "endpoint"},
	)

	DispatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebase_dispatch_total",
			Help: "Total number of capability dispatches by target server and result source",
		},
		[]string{"server", "source"},
	)

	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitebase_dispatch_latency_seconds",
			Help:    "Dispatch latency in seconds, fallbacks included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"server"},
	)

	ContextStoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebase_context_store_operations_total",
			Help: "Conversation context store operations by result",
		},
		[]string{"op", "result"},
	)

	ClassifierDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebase_classifier_decisions_total",
			Help: "Classified inbound messages by category and action",
		},
		[]string{"category", "action"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitebase_copilot_active_connections",
			Help: "Number of open copilot WebSocket connections",
		},
	)

	HistoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebase_history_operations_total",
			Help: "Chat history operations by result",
		},
		[]string{"op", "result"},
	)

	TurnEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitebase_turn_events_total",
			Help: "Conversation turn events by stage",
		},
		[]string{"stage"},
	)

	ServerUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bitebase_tool_server_up",
			Help: "Tool server health as seen by the last health check (1 healthy, 0 unhealthy)",
		},
		[]string{"server"},
	)
)

// Result label values shared by the operation counters.
const (
	ResultOK    = "ok"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal tracks processed turns by activity type and selected reply.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_turns_total",
			Help: "Total turns processed",
		},
		[]string{"activity_type", "decision"},
	)

	// BackendDuration tracks QA and intent service call duration.
	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_backend_duration_seconds",
			Help:    "Remote NLU/QA backend call duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"backend", "status"},
	)

	// StateOperations tracks conversation state loads and commits.
	StateOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_state_operations_total",
			Help: "Conversation state store operations",
		},
		[]string{"store", "op", "status"},
	)

	// RepliesTotal tracks outbound activities by delivery path.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_replies_total",
			Help: "Outbound activities sent",
		},
		[]string{"delivery", "status"},
	)

	// UploadsTotal tracks publish uploads by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_uploads_total",
			Help: "Archive uploads by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records a processed turn.
func RecordTurn(activityType, decision string) {
	TurnsTotal.WithLabelValues(activityType, decision).Inc()
}

// RecordBackend records one remote backend call.
func RecordBackend(backend string, err error, duration float64) {
	BackendDuration.WithLabelValues(backend, statusLabel(err)).Observe(duration)
}

// RecordStateOp records one state store operation.
func RecordStateOp(store, op string, err error) {
	StateOperations.WithLabelValues(store, op, statusLabel(err)).Inc()
}

// RecordReply records one outbound activity.
func RecordReply(delivery string, err error) {
	RepliesTotal.WithLabelValues(delivery, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordUpload records a publish upload outcome.
func RecordUpload(outcome string) {
	UploadsTotal.WithLabelValues(outcome).Inc()
}

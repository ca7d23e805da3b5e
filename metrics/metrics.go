// Package metrics exposes Prometheus collectors for the broker. Collectors are
// registered with the default registry on import; hosts expose them through
// their own promhttp handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vxbroker_requests_issued_total",
		Help: "Total number of requests handed to the engine",
	}, []string{"type"})

	RequestFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vxbroker_request_failures_total",
		Help: "Total number of failed requests by type and reason",
	}, []string{"type", "reason"})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vxbroker_pending_requests",
		Help: "Number of requests awaiting an engine response",
	})

	EventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vxbroker_events_dispatched_total",
		Help: "Total number of engine events delivered to an entity",
	}, []string{"type"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vxbroker_events_dropped_total",
		Help: "Total number of engine events dropped by type and reason",
	}, []string{"type", "reason"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vxbroker_operation_duration_seconds",
		Help:    "Time from request issue to operation completion",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"type"})
)

// Failure reasons.
const (
	ReasonSendFailed   = "send_failed"
	ReasonEngineError  = "engine_error"
	ReasonHandlerError = "handler_error"
	ReasonNoRoute      = "no_route"
	ReasonUnknownReq   = "unknown_request"
	ReasonQueueClosed  = "queue_closed"
	ReasonDecode       = "decode_failed"
	ReasonUnsupported  = "unsupported_event"
	ReasonNoSink       = "no_response_sink"
)

// IncRequestIssued records a request handed to the engine.
func IncRequestIssued(reqType string) {
	RequestsIssuedTotal.WithLabelValues(label(reqType)).Inc()
}

// IncRequestFailure records a failed request with a concrete reason.
func IncRequestFailure(reqType, reason string) {
	RequestFailuresTotal.WithLabelValues(label(reqType), label(reason)).Inc()
}

// SetPending publishes the number of outstanding requests.
func SetPending(n int) {
	PendingRequests.Set(float64(n))
}

// IncEventDispatched records an event delivered to its owner.
func IncEventDispatched(evtType string) {
	EventsDispatchedTotal.WithLabelValues(label(evtType)).Inc()
}

// IncEventDropped records an event nobody was interested in.
func IncEventDropped(evtType, reason string) {
	EventsDroppedTotal.WithLabelValues(label(evtType), label(reason)).Inc()
}

// ObserveOperation records the latency of a completed operation.
func ObserveOperation(reqType string, d time.Duration) {
	OperationDuration.WithLabelValues(label(reqType)).Observe(d.Seconds())
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing used across the notification pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch and delivery outcomes used as metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds metric instruments for the notification pipeline.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	EventsCreatedTotal prometheus.Counter
	DispatchesTotal    *prometheus.CounterVec
	HandlerFailures    *prometheus.CounterVec
	DeliveriesTotal    *prometheus.CounterVec
	DeliveryLatency    prometheus.Histogram
	ChatMessagesTotal  *prometheus.CounterVec
	PendingJobs        prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_events_created_total",
			Help: "Events persisted by the event store.",
		}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_dispatches_total",
			Help: "Dispatch job runs by result.",
		}, []string{"result"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_handler_failures_total",
			Help: "Notification handler failures by handler name.",
		}, []string{"handler"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Webhook delivery attempts by result.",
		}, []string{"result"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notify_delivery_latency_seconds",
			Help:    "Webhook request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		ChatMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_chat_messages_total",
			Help: "Chat integration messages by integration type and result.",
		}, []string{"integration", "result"}),
		PendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notify_pending_jobs",
			Help: "Jobs waiting in the queue at the last poll.",
		}),
	}
	reg.MustRegister(
		m.EventsCreatedTotal,
		m.DispatchesTotal,
		m.HandlerFailures,
		m.DeliveriesTotal,
		m.DeliveryLatency,
		m.ChatMessagesTotal,
		m.PendingJobs,
	)
	return m
}

// EventCreated counts one persisted event.
func (m *Metrics) EventCreated() {
	if m == nil {
		return
	}
	m.EventsCreatedTotal.Inc()
}

// RecordDispatch counts one dispatch run.
func (m *Metrics) RecordDispatch(result string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(result).Inc()
}

// RecordHandlerFailure counts one failed handler invocation.
func (m *Metrics) RecordHandlerFailure(handler string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(handler).Inc()
}

// RecordDelivery records a webhook attempt with its result and latency.
func (m *Metrics) RecordDelivery(result string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(result).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordChatMessage counts one chat integration send.
func (m *Metrics) RecordChatMessage(integration, result string) {
	if m == nil {
		return
	}
	m.ChatMessagesTotal.WithLabelValues(integration, result).Inc()
}

// SetPendingJobs records the queue depth.
func (m *Metrics) SetPendingJobs(n int64) {
	if m == nil {
		return
	}
	m.PendingJobs.Set(float64(n))
}

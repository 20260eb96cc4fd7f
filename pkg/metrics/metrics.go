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
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deal_conversations_total",
			Help: "Total deal conversations created",
		},
		[]string{"deal_type"},
	)

	// ConversationsOpen tracks conversations that are not archived.
	ConversationsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deal_conversations_open",
			Help: "Deal conversations that are not archived",
		},
	)

	// MessagesTotal tracks appended messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deal_messages_total",
			Help: "Total messages appended",
		},
		[]string{"message_type", "role"},
	)

	// StatusTransitionsTotal tracks lifecycle transitions.
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deal_status_transitions_total",
			Help: "Deal status transitions",
		},
		[]string{"from", "to"},
	)

	// LenderMatchDuration tracks recommendation requests.
	LenderMatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lender_match_duration_seconds",
			Help:    "Lender recommendation latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"deal_type", "status"},
	)

	// LenderMatchResults tracks how many lenders matched a request.
	LenderMatchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lender_match_results",
			Help:    "Number of lenders returned per request",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		},
	)

	// AssistantRepliesTotal tracks assistant reply outcomes.
	AssistantRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_replies_total",
			Help: "Assistant replies by outcome",
		},
		[]string{"outcome"},
	)

	// AssistantPending tracks queued assistant replies across conversations.
	AssistantPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_replies_pending",
			Help: "Assistant replies waiting to be appended",
		},
	)

	// LLMRequestDuration tracks narration calls.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// EventsDroppedTotal counts events not delivered to a slow subscriber.
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_events_dropped_total",
			Help: "Conversation events dropped because a subscriber buffer was full",
		},
	)

	// NATSPublishTotal tracks events mirrored to JetStream.
	NATSPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_total",
			Help: "Conversation events published to NATS",
		},
		[]string{"event_type", "status"},
	)

	// NATSStreamMessages tracks the last acknowledged stream sequence.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_last_sequence",
			Help: "Last sequence acknowledged by the NATS stream",
		},
		[]string{"stream"},
	)

	// AttachmentBytesTotal tracks stored attachment bytes.
	AttachmentBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_bytes_total",
			Help: "Bytes of attachments stored",
		},
		[]string{"file_type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLM records metrics for a completion call.
func RecordLLM(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordLenderMatch records a recommendation request.
func RecordLenderMatch(dealType, status string, duration float64, results int) {
	LenderMatchDuration.WithLabelValues(dealType, status).Observe(duration)
	if status == "ok" {
		LenderMatchResults.Observe(float64(results))
	}
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

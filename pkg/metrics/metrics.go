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

	// MeetingsScheduled tracks scheduling attempts by outcome.
	MeetingsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetings_scheduled_total",
			Help: "Meeting scheduling attempts",
		},
		[]string{"result"},
	)

	// MeetingTransitions tracks meeting state transitions.
	MeetingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_state_transitions_total",
			Help: "Meeting state transitions by target state",
		},
		[]string{"state"},
	)

	// MeetingsOpen tracks meetings counting toward the concurrency ceiling.
	MeetingsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetings_open",
			Help: "Meetings in scheduled, starting or active state",
		},
	)

	// MeetingDuration tracks wall-clock meeting duration.
	MeetingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meeting_duration_seconds",
			Help:    "Meeting duration from start to completion",
			Buckets: []float64{60, 300, 600, 900, 1800, 2700, 3600, 5400, 7200},
		},
		[]string{"end_reason"},
	)

	// TranscriptEntries tracks transcript entries appended.
	TranscriptEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_entries_total",
			Help: "Transcript entries appended",
		},
		[]string{"type"},
	)

	// AgentResponses tracks agent response attempts by outcome.
	AgentResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_responses_total",
			Help: "Agent response generation attempts",
		},
		[]string{"outcome"},
	)

	// AgentResponseDuration tracks agent response generation latency.
	AgentResponseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_response_duration_seconds",
			Help:    "Agent response generation latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
	)

	// PlatformJoins tracks platform join attempts.
	PlatformJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_joins_total",
			Help: "Platform join attempts",
		},
		[]string{"platform", "result"},
	)

	// TranscriptionSessions tracks active transcription sessions per provider.
	TranscriptionSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transcription_sessions_active",
			Help: "Active transcription sessions",
		},
		[]string{"provider"},
	)

	// LLMRequestDuration tracks LLM completion latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// EventsPublished tracks lifecycle events published to the event bus.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_events_published_total",
			Help: "Meeting lifecycle events published",
		},
		[]string{"type", "status"},
	)

	// EventStreams tracks open meeting event streams.
	EventStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meeting_event_streams_active",
			Help: "Open server-sent event streams",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCompletion records metrics for an LLM completion.
func RecordLLMCompletion(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordTransition records a meeting state transition.
func RecordTransition(state string) {
	MeetingTransitions.WithLabelValues(state).Inc()
}

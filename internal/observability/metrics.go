package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. HTTP collectors live in the middleware package; these
// track the pairing, storage and AI layers. Label sets are small enums.
var (
	// InvitationEvents counts invitation reducer outcomes by operation
	// (send/accept/decline/end) and result (ok/rejected).
	InvitationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialcart_invitation_events_total",
			Help: "Invitation store operations by outcome.",
		},
		[]string{"op", "result"},
	)

	// SessionTransitions counts session controller transitions (activated/deactivated).
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialcart_session_transitions_total",
			Help: "Pair shopping session state transitions observed by execution contexts.",
		},
		[]string{"transition"},
	)

	// OpenContexts gauges the number of live execution contexts.
	OpenContexts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialcart_open_contexts",
			Help: "Number of open execution contexts.",
		},
	)

	// DroppedNotifications counts change notifications or context events
	// discarded because a subscriber buffer was full.
	DroppedNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialcart_dropped_notifications_total",
			Help: "Notifications dropped because the subscriber was not keeping up.",
		},
		[]string{"source"},
	)

	// CorruptEntries counts store entries cleared because they failed to decode.
	CorruptEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socialcart_kv_corrupt_entries_total",
			Help: "Shared store entries cleared after failing to decode.",
		},
	)

	// AICalls counts AI collaborator calls by flow and outcome (ok/error/empty).
	AICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialcart_ai_calls_total",
			Help: "AI collaborator calls by flow and outcome.",
		},
		[]string{"flow", "outcome"},
	)

	// AILatency records AI call duration in seconds by flow.
	AILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialcart_ai_call_duration_seconds",
			Help:    "Duration of AI collaborator calls.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"flow"},
	)
)

func init() {
	prometheus.MustRegister(
		InvitationEvents,
		SessionTransitions,
		OpenContexts,
		DroppedNotifications,
		CorruptEntries,
		AICalls,
		AILatency,
	)
}

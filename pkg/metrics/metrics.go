package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in and sign-up attempts by kind (login|signup|refresh|password_change) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenahub_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"kind", "result"},
	)

	// ActiveSessions tracks sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arenahub_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// ChallengeTransitions counts challenge status changes by target status.
	ChallengeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenahub_challenge_transitions_total",
			Help: "Challenge status transitions",
		},
		[]string{"status"},
	)

	// InvitationResponses counts invitation outcomes (accepted|declined|revoked).
	InvitationResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenahub_invitation_responses_total",
			Help: "Team invitation responses",
		},
		[]string{"result"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenahub_notifications_created_total",
			Help: "Notifications created by type",
		},
		[]string{"type"},
	)

	ChatMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arenahub_match_chat_messages_total",
			Help: "Match chat messages posted",
		},
	)

	// RealtimeConnections is the number of open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arenahub_realtime_connections",
			Help: "Open realtime websocket connections",
		},
	)

	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arenahub_realtime_dropped_messages_total",
			Help: "Realtime messages dropped because a client buffer was full",
		},
	)

	// MaintenanceRuns counts maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arenahub_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arenahub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repfit_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repfit_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// AttendanceEvents counts attendance transitions by kind (checkin|checkout|edit).
	AttendanceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repfit_attendance_events_total",
			Help: "Total number of attendance session transitions",
		},
		[]string{"kind", "subject_type"},
	)

	// InviteEmails counts invitation email deliveries by result (sent|failed|disabled).
	InviteEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repfit_invite_emails_total",
			Help: "Total number of invitation email delivery attempts",
		},
		[]string{"result"},
	)

	// OpenSessions tracks currently open attendance sessions.
	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repfit_open_attendance_sessions",
			Help: "Number of attendance sessions without a checkout",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repfit_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

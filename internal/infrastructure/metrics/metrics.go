package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Notifications
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_notifications_dispatched_total",
			Help: "Notify calls by category and delivery outcome",
		},
		[]string{"category", "outcome"}, // "in_app", "email", "both", "none", "skipped", "in_app_failed"
	)

	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpulse_realtime_sessions",
			Help: "Currently registered websocket sessions",
		},
	)

	RealtimeFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskpulse_realtime_frames_dropped_total",
			Help: "Events not delivered because a session's send buffer was full",
		},
	)

	// Email
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_emails_total",
			Help: "Email delivery attempts by transport and result",
		},
		[]string{"transport", "result"}, // transport: "default", "override"
	)

	MailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpulse_mail_queue_depth",
			Help: "Emails waiting in the mail queue",
		},
	)

	MailQueueRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskpulse_mail_queue_rejected_total",
			Help: "Emails dropped because the mail queue was full or stopped",
		},
	)

	// Recurrence
	RecurrenceTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskpulse_recurrence_tick_duration_seconds",
			Help:    "Duration of recurrence ticks",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecurrenceTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_recurrence_tasks_total",
			Help: "Recurring rules processed per tick by result",
		},
		[]string{"result"}, // "rolled_over", "skipped", "failed"
	)

	// Audit
	AuditAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_audit_appends_total",
			Help: "Audit ledger appends by result",
		},
		[]string{"result"},
	)

	// HTTP
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskpulse_api_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordTick records one finished recurrence tick.
func RecordTick(duration time.Duration, rolledOver, skipped, failed int) {
	RecurrenceTickDuration.Observe(duration.Seconds())
	RecurrenceTasks.WithLabelValues("rolled_over").Add(float64(rolledOver))
	RecurrenceTasks.WithLabelValues("skipped").Add(float64(skipped))
	RecurrenceTasks.WithLabelValues("failed").Add(float64(failed))
}

// RecordEmail records one delivery attempt.
func RecordEmail(override bool, err error) {
	transport := "default"
	if override {
		transport = "override"
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	EmailsSent.WithLabelValues(transport, result).Inc()
}

// RecordAuditAppend records the outcome of an audit append.
func RecordAuditAppend(err error) {
	if err != nil {
		AuditAppends.WithLabelValues("failed").Inc()
		return
	}
	AuditAppends.WithLabelValues("ok").Inc()
}

// RecordAPIRequest observes one HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

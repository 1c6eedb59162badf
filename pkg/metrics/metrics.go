package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec

	// Notification dispatch metrics
	NotificationsCreated *prometheus.CounterVec
	EmailsSent           prometheus.Counter
	EmailsFailed         prometheus.Counter
	EmailRetries         prometheus.Counter
	BrokerPublishErrors  prometheus.Counter

	// Workflow transition metrics
	AppointmentTransitions *prometheus.CounterVec
	RequestResolutions     *prometheus.CounterVec

	// Job metrics
	JobDuration *prometheus.HistogramVec
	JobItems    *prometheus.CounterVec
}

// New creates and registers all application metrics under a namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path", "status"}),
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		NotificationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created",
		}, []string{"type"}),
		EmailsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of emails delivered",
		}),
		EmailsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_failed_total",
			Help:      "Total number of email delivery failures",
		}),
		EmailRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_retries_total",
			Help:      "Total number of email retry attempts",
		}),
		BrokerPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_publish_errors_total",
			Help:      "Total number of failed notification event publishes",
		}),

		AppointmentTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Total number of appointment status transitions",
		}, []string{"to"}),
		RequestResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_request_resolutions_total",
			Help:      "Total number of update request resolutions",
		}, []string{"resolution"}),

		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		JobItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_items_processed_total",
			Help:      "Total number of items processed by scheduled jobs",
		}, []string{"job"}),
	}
}

// NewWithRegistry registers against a private registry, for tests.
func NewWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created",
		}, []string{"type"}),
		EmailsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of emails delivered",
		}),
		EmailsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_failed_total",
			Help:      "Total number of email delivery failures",
		}),
		EmailRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_retries_total",
			Help:      "Total number of email retry attempts",
		}),
		BrokerPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_publish_errors_total",
			Help:      "Total number of failed notification event publishes",
		}),
		AppointmentTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Total number of appointment status transitions",
		}, []string{"to"}),
		RequestResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_request_resolutions_total",
			Help:      "Total number of update request resolutions",
		}, []string{"resolution"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs",
		}, []string{"job"}),
		JobItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_items_processed_total",
			Help:      "Total number of items processed by scheduled jobs",
		}, []string{"job"}),
	}
}

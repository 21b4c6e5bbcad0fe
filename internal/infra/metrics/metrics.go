package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	leadSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_submissions_total",
			Help: "Public lead submissions by outcome",
		},
		[]string{"result"},
	)

	emailDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_dispatch_total",
			Help: "Email delivery attempts by type and outcome",
		},
		[]string{"email_type", "status"},
	)

	emailBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_batch_duration_seconds",
			Help:    "Duration of one email queue batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	emailBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_batch_claimed",
			Help:    "Queue rows claimed per batch",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	integrationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_errors_total",
			Help: "Total number of integration errors",
		},
		[]string{"service"},
	)
)

func RecordLeadSubmission(result string) {
	leadSubmissions.WithLabelValues(result).Inc()
}

func RecordEmailDispatch(emailType, status string) {
	emailDispatches.WithLabelValues(emailType, status).Inc()
}

func RecordBatch(claimed int, d time.Duration) {
	emailBatchSize.Observe(float64(claimed))
	emailBatchDuration.Observe(d.Seconds())
}

func RecordIntegrationError(service string) {
	integrationErrors.WithLabelValues(service).Inc()
}

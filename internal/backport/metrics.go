package backport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "backportd"

const (
	pendingJobsMetricName    = "pending_jobs_count"
	processedJobsMetricName  = "processed_jobs_total"
	receivedEventsMetricName = "received_github_events_total"
	resultLabel              = "result"
)

type jobResultLabelVal string

const (
	jobResultSuccess jobResultLabelVal = "success"
	jobResultFailure jobResultLabelVal = "failure"
)

type metricCollector struct {
	pendingJobs    prometheus.Gauge
	processedJobs  *prometheus.CounterVec
	receivedEvents prometheus.Counter
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		pendingJobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      pendingJobsMetricName,
				Help:      "count of backport jobs waiting in the queue",
			},
		),
		processedJobs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      processedJobsMetricName,
				Help:      "count of processed backport jobs",
			},
			[]string{resultLabel},
		),
		receivedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      receivedEventsMetricName,
				Help:      "count of processed github webhook events",
			},
		),
	}
}

func (m *metricCollector) PendingJobsInc() {
	m.pendingJobs.Inc()
}

func (m *metricCollector) PendingJobsDec() {
	m.pendingJobs.Dec()
}

func (m *metricCollector) ProcessedJobsInc(result jobResultLabelVal) {
	m.processedJobs.WithLabelValues(string(result)).Inc()
}

func (m *metricCollector) ReceivedEventsInc() {
	m.receivedEvents.Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RegistryMetrics tracks registry operations, API traffic and notification
// delivery. A nil *RegistryMetrics records nothing.
type RegistryMetrics struct {
	resourcesTotal         *prometheus.GaugeVec
	operationsTotal        *prometheus.CounterVec
	operationDuration      *prometheus.HistogramVec
	blobBytesTotal         *prometheus.CounterVec
	notificationsPublished *prometheus.CounterVec
	notificationsFailed    *prometheus.CounterVec
	apiRequestsTotal       *prometheus.CounterVec
	apiRequestDuration     *prometheus.HistogramVec
}

// NewRegistryMetrics initializes registry metrics with the collector
func NewRegistryMetrics(collector *Collector) *RegistryMetrics {
	return &RegistryMetrics{
		resourcesTotal: collector.RegisterGauge(
			MetricResourcesTotal,
			"Resources created minus resources deleted since start, by kind",
			[]string{LabelKind},
		),
		operationsTotal: collector.RegisterCounter(
			MetricOperationsTotal,
			"Registry operations by kind, operation and status",
			[]string{LabelKind, LabelOperation, LabelStatus},
		),
		operationDuration: collector.RegisterHistogram(
			MetricOperationDuration,
			"Registry operation latency in seconds",
			[]string{LabelKind, LabelOperation},
			nil,
		),
		blobBytesTotal: collector.RegisterCounter(
			MetricBlobBytesTotal,
			"Bytes uploaded to the blob store",
			[]string{LabelKind},
		),
		notificationsPublished: collector.RegisterCounter(
			MetricNotificationsPublished,
			"Notifications delivered to a sink",
			[]string{LabelSink, LabelEventType},
		),
		notificationsFailed: collector.RegisterCounter(
			MetricNotificationsFailed,
			"Notifications a sink failed to deliver",
			[]string{LabelSink, LabelEventType},
		),
		apiRequestsTotal: collector.RegisterCounter(
			MetricAPIRequestsTotal,
			"Total HTTP requests by method, endpoint, and status",
			[]string{LabelMethod, LabelEndpoint, LabelStatus},
		),
		apiRequestDuration: collector.RegisterHistogram(
			MetricAPIRequestDuration,
			"API request latency in seconds",
			[]string{LabelMethod, LabelEndpoint},
			prometheus.DefBuckets,
		),
	}
}

// RecordOperation records one engine operation
func (m *RegistryMetrics) RecordOperation(kind, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(kind, operation, status).Inc()
	m.operationDuration.WithLabelValues(kind, operation).Observe(duration.Seconds())
}

// RecordResourceCreated increments the resource gauge for kind
func (m *RegistryMetrics) RecordResourceCreated(kind string) {
	if m == nil {
		return
	}
	m.resourcesTotal.WithLabelValues(kind).Inc()
}

// RecordResourceDeleted decrements the resource gauge for kind
func (m *RegistryMetrics) RecordResourceDeleted(kind string) {
	if m == nil {
		return
	}
	m.resourcesTotal.WithLabelValues(kind).Dec()
}

// RecordBlobBytes adds n uploaded bytes for kind
func (m *RegistryMetrics) RecordBlobBytes(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.blobBytesTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordNotification counts one publish attempt
func (m *RegistryMetrics) RecordNotification(sink, eventType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notificationsFailed.WithLabelValues(sink, eventType).Inc()
		return
	}
	m.notificationsPublished.WithLabelValues(sink, eventType).Inc()
}

// RecordAPIRequest records an API request
func (m *RegistryMetrics) RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.apiRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.apiRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

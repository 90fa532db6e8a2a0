package metrics

// Metric name constants following Prometheus naming conventions
// Format: registry_{component}_{metric}_{unit}

// Registry engine metrics
const (
	MetricResourcesTotal    = "registry_resources_total"
	MetricOperationsTotal   = "registry_operations_total"
	MetricOperationDuration = "registry_operation_duration_seconds"
	MetricBlobBytesTotal    = "registry_blob_bytes_written_total"
)

// Notification metrics
const (
	MetricNotificationsPublished = "registry_notifications_published_total"
	MetricNotificationsFailed    = "registry_notifications_failed_total"
)

// API metrics
const (
	MetricAPIRequestsTotal   = "registry_api_requests_total"
	MetricAPIRequestDuration = "registry_api_request_duration_seconds"
)

// Label name constants
const (
	LabelKind      = "kind"
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelMethod    = "method"
	LabelEndpoint  = "endpoint"
	LabelSink      = "sink"
	LabelEventType = "event_type"
)

// Operation status label values
const (
	StatusOK       = "ok"
	StatusConflict = "conflict"
	StatusNotFound = "not_found"
	StatusInvalid  = "invalid"
	StatusError    = "error"
)

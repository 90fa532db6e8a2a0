package tracing

// Span attribute keys following OpenTelemetry semantic conventions
const (
	// Registry attributes
	AttrKind         = "registry.kind"
	AttrGroupID      = "registry.group.id"
	AttrResourceKind = "registry.resource.kind"
	AttrResourceID   = "registry.resource.id"
	AttrVersionID    = "registry.version.id"
	AttrOutcome      = "registry.outcome"

	// Document store attributes
	AttrContainer    = "registry.docstore.container"
	AttrPartitionKey = "registry.docstore.partition_key"
	AttrDocumentID   = "registry.docstore.id"

	// Blob store attributes
	AttrBucket    = "registry.blob.bucket"
	AttrObjectKey = "registry.blob.key"
	AttrBytes     = "registry.blob.bytes"

	// Notification attributes
	AttrEventType = "registry.event.type"
	AttrSink      = "registry.event.sink"

	// Operation attributes
	AttrOperation = "registry.operation"
	AttrStatus    = "registry.status"
	AttrError     = "registry.error"

	// HTTP attributes (OpenTelemetry semantic conventions)
	AttrHTTPMethod       = "http.method"
	AttrHTTPRoute        = "http.route"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPUserAgent    = "http.user_agent"
	AttrHTTPRequestSize  = "http.request.size"
	AttrHTTPResponseSize = "http.response.size"
)

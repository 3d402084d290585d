// Package ingest implements the aggregator-side OTLP adapter: converting an
// inbound ExportLogsServiceRequest/ExportTraceServiceRequest into the
// internal log/trace records the rest of the aggregator operates on.
package ingest

// OTelLog is one converted log record, flattened from its OTLP
// resource/scope/record nesting into a single row.
type OTelLog struct {
	Timestamp         uint64
	ObservedTimestamp uint64

	TraceID    string
	SpanID     string
	TraceFlags uint8

	SeverityText   string
	SeverityNumber uint8
	Body           string

	ResourceSchemaURL  string
	ResourceAttributes map[string]string

	ScopeSchemaURL  string
	ScopeName       string
	ScopeVersion    string
	ScopeAttributes map[string]string

	LogAttributes map[string]string

	ServiceName string
}

// SpanKind mirrors the OTLP trace span kind enum as an internal string
// value, decoupled from the protobuf type so downstream code never imports
// the wire package.
type SpanKind string

const (
	SpanKindUnspecified SpanKind = "unspecified"
	SpanKindInternal    SpanKind = "internal"
	SpanKindServer      SpanKind = "server"
	SpanKindClient      SpanKind = "client"
	SpanKindProducer    SpanKind = "producer"
	SpanKindConsumer    SpanKind = "consumer"
)

// StatusCode mirrors the OTLP span status code enum.
type StatusCode string

const (
	StatusUnset StatusCode = "unset"
	StatusOK    StatusCode = "ok"
	StatusError StatusCode = "error"
)

// SpanEvent is one span event, flattened for storage/query convenience
// rather than kept as a nested OTLP structure.
type SpanEvent struct {
	Timestamp  uint64
	Name       string
	Attributes map[string]string
}

// SpanLink is one span link, flattened analogously to SpanEvent.
type SpanLink struct {
	TraceID    string
	SpanID     string
	TraceState string
	Attributes map[string]string
}

// OTelTrace is one converted span.
type OTelTrace struct {
	Timestamp    uint64
	TraceID      string
	SpanID       string
	ParentSpanID string
	TraceState   string
	SpanName     string
	SpanKind     SpanKind
	ServiceName  string

	ResourceAttributes map[string]string
	SpanAttributes     map[string]string

	Duration      int64
	StatusCode    StatusCode
	StatusMessage string

	EventsNested []SpanEvent
	LinksNested  []SpanLink
}

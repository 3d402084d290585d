package ingest

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	collectorlogsv1 "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectortracev1 "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
)

// ConvertLogRecords flattens every log record in an inbound OTLP export
// request into the internal OTelLog shape, threading resource/scope context
// down to each record.
func ConvertLogRecords(request *collectorlogsv1.ExportLogsServiceRequest) []OTelLog {
	var logs []OTelLog

	for _, resourceLogs := range request.GetResourceLogs() {
		resourceAttrs := convertAttributes(resourceLogs.GetResource().GetAttributes())
		resourceSchemaURL := resourceLogs.GetSchemaUrl()

		for _, scopeLogs := range resourceLogs.GetScopeLogs() {
			scope := scopeLogs.GetScope()
			scopeName := scope.GetName()
			scopeVersion := scope.GetVersion()
			scopeAttrs := convertAttributes(scope.GetAttributes())
			scopeSchemaURL := scopeLogs.GetSchemaUrl()

			for _, record := range scopeLogs.GetLogRecords() {
				logs = append(logs, convertSingleLog(record, resourceAttrs, resourceSchemaURL, scopeName, scopeVersion, scopeAttrs, scopeSchemaURL))
			}
		}
	}

	return logs
}

func convertSingleLog(record *logsv1.LogRecord, resourceAttrs map[string]string, resourceSchemaURL, scopeName, scopeVersion string, scopeAttrs map[string]string, scopeSchemaURL string) OTelLog {
	logAttrs := convertAttributes(record.GetAttributes())

	traceID := resolveTraceID(record.GetTraceId(), logAttrs)
	spanID := resolveSpanID(record.GetSpanId(), logAttrs)

	serviceName := resourceAttrs["service.name"]
	if serviceName == "" {
		serviceName = "unknown"
	}

	return OTelLog{
		Timestamp:         record.GetTimeUnixNano(),
		ObservedTimestamp: record.GetObservedTimeUnixNano(),
		TraceID:           traceID,
		SpanID:            spanID,
		TraceFlags:        uint8(record.GetFlags()),
		SeverityText:      record.GetSeverityText(),
		SeverityNumber:    uint8(record.GetSeverityNumber()),
		Body:              extractBody(record.GetBody()),

		ResourceSchemaURL:  resourceSchemaURL,
		ResourceAttributes: resourceAttrs,

		ScopeSchemaURL:  scopeSchemaURL,
		ScopeName:       scopeName,
		ScopeVersion:    scopeVersion,
		ScopeAttributes: scopeAttrs,

		LogAttributes: logAttrs,
		ServiceName:   serviceName,
	}
}

// resolveTraceID prefers the protocol-level trace_id; an empty or all-zero
// field falls back to the record's trace_id attribute (e.g. an otelslog
// bridge that only carries trace context as a string attribute); absent
// either source, it yields 32 zero chars rather than failing the record.
func resolveTraceID(raw []byte, logAttrs map[string]string) string {
	if isAllZero(raw) {
		if v, ok := logAttrs["trace_id"]; ok {
			return v
		}
		return strings.Repeat("0", 32)
	}
	return encodeTraceID(raw)
}

func resolveSpanID(raw []byte, logAttrs map[string]string) string {
	if isAllZero(raw) {
		if v, ok := logAttrs["span_id"]; ok {
			return v
		}
		return strings.Repeat("0", 16)
	}
	return encodeSpanID(raw)
}

func isAllZero(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// ConvertSpans flattens every span in an inbound OTLP trace export request
// into the internal OTelTrace shape, with events and links nested rather
// than kept as separate top-level collections.
func ConvertSpans(request *collectortracev1.ExportTraceServiceRequest) []OTelTrace {
	var traces []OTelTrace

	for _, resourceSpans := range request.GetResourceSpans() {
		resourceAttrs := convertAttributes(resourceSpans.GetResource().GetAttributes())
		serviceName := resourceAttrs["service.name"]
		if serviceName == "" {
			serviceName = "unknown"
		}

		for _, scopeSpans := range resourceSpans.GetScopeSpans() {
			for _, span := range scopeSpans.GetSpans() {
				traces = append(traces, convertSingleSpan(span, resourceAttrs, serviceName))
			}
		}
	}

	return traces
}

func convertSingleSpan(span *tracev1.Span, resourceAttrs map[string]string, serviceName string) OTelTrace {
	events := make([]SpanEvent, 0, len(span.GetEvents()))
	for _, e := range span.GetEvents() {
		events = append(events, SpanEvent{
			Timestamp:  e.GetTimeUnixNano(),
			Name:       e.GetName(),
			Attributes: convertAttributes(e.GetAttributes()),
		})
	}

	links := make([]SpanLink, 0, len(span.GetLinks()))
	for _, l := range span.GetLinks() {
		links = append(links, SpanLink{
			TraceID:    encodeTraceID(l.GetTraceId()),
			SpanID:     encodeSpanID(l.GetSpanId()),
			TraceState: l.GetTraceState(),
			Attributes: convertAttributes(l.GetAttributes()),
		})
	}

	statusCode := StatusUnset
	statusMessage := ""
	if status := span.GetStatus(); status != nil {
		statusCode = mapStatusCode(status.GetCode())
		statusMessage = status.GetMessage()
	}

	return OTelTrace{
		Timestamp:    span.GetStartTimeUnixNano(),
		TraceID:      encodeTraceID(span.GetTraceId()),
		SpanID:       encodeSpanID(span.GetSpanId()),
		ParentSpanID: encodeSpanID(span.GetParentSpanId()),
		TraceState:   span.GetTraceState(),
		SpanName:     span.GetName(),
		SpanKind:     mapSpanKind(span.GetKind()),
		ServiceName:  serviceName,

		ResourceAttributes: resourceAttrs,
		SpanAttributes:     convertAttributes(span.GetAttributes()),

		Duration:      saturatingSub(span.GetEndTimeUnixNano(), span.GetStartTimeUnixNano()),
		StatusCode:    statusCode,
		StatusMessage: statusMessage,

		EventsNested: events,
		LinksNested:  links,
	}
}

// saturatingSub mirrors Rust's saturating_sub: the duration can never go
// negative even if a misbehaving client sends an end time before its start.
func saturatingSub(end, start uint64) int64 {
	if end < start {
		return 0
	}
	return int64(end - start)
}

func mapSpanKind(kind tracev1.Span_SpanKind) SpanKind {
	switch kind {
	case tracev1.Span_SPAN_KIND_INTERNAL:
		return SpanKindInternal
	case tracev1.Span_SPAN_KIND_SERVER:
		return SpanKindServer
	case tracev1.Span_SPAN_KIND_CLIENT:
		return SpanKindClient
	case tracev1.Span_SPAN_KIND_PRODUCER:
		return SpanKindProducer
	case tracev1.Span_SPAN_KIND_CONSUMER:
		return SpanKindConsumer
	default:
		return SpanKindUnspecified
	}
}

func mapStatusCode(code tracev1.Status_StatusCode) StatusCode {
	switch code {
	case tracev1.Status_STATUS_CODE_OK:
		return StatusOK
	case tracev1.Status_STATUS_CODE_ERROR:
		return StatusError
	default:
		return StatusUnset
	}
}

// convertAttributes flattens a KeyValue list into a plain string map,
// stringifying every AnyValue variant the same way regardless of its wire
// type (scalars render directly, bytes as hex, arrays/maps recursively as
// bracket/brace-delimited text) so storage never needs to branch on type.
func convertAttributes(attrs []*commonv1.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		val, ok := extractStringValue(kv.GetValue())
		if !ok {
			continue
		}
		out[kv.GetKey()] = val
	}
	return out
}

func extractStringValue(value *commonv1.AnyValue) (string, bool) {
	if value == nil {
		return "", false
	}
	switch v := value.GetValue().(type) {
	case *commonv1.AnyValue_StringValue:
		return v.StringValue, true
	case *commonv1.AnyValue_IntValue:
		return strconv.FormatInt(v.IntValue, 10), true
	case *commonv1.AnyValue_DoubleValue:
		return strconv.FormatFloat(v.DoubleValue, 'g', -1, 64), true
	case *commonv1.AnyValue_BoolValue:
		return strconv.FormatBool(v.BoolValue), true
	case *commonv1.AnyValue_BytesValue:
		return hex.EncodeToString(v.BytesValue), true
	case *commonv1.AnyValue_ArrayValue:
		items := make([]string, 0, len(v.ArrayValue.GetValues()))
		for _, item := range v.ArrayValue.GetValues() {
			if s, ok := extractStringValue(item); ok {
				items = append(items, s)
			}
		}
		return fmt.Sprintf("[%s]", strings.Join(items, ", ")), true
	case *commonv1.AnyValue_KvlistValue:
		items := make([]string, 0, len(v.KvlistValue.GetValues()))
		for _, kv := range v.KvlistValue.GetValues() {
			if s, ok := extractStringValue(kv.GetValue()); ok {
				items = append(items, fmt.Sprintf("%s=%s", kv.GetKey(), s))
			}
		}
		return fmt.Sprintf("{%s}", strings.Join(items, ", ")), true
	default:
		return "", false
	}
}

func extractBody(body *commonv1.AnyValue) string {
	s, _ := extractStringValue(body)
	return s
}

// encodeTraceID renders trace id bytes as 32 hex chars, left-padding a
// shorter array with leading zero bytes and truncating a longer one from
// the tail (keeping its leading 16 bytes) - defensive against malformed
// upstream input, not just the well-formed 16-byte case.
func encodeTraceID(b []byte) string {
	return encodeID(b, 16)
}

// encodeSpanID renders span id bytes as 16 hex chars under the same
// padding/truncation rule as encodeTraceID.
func encodeSpanID(b []byte) string {
	return encodeID(b, 8)
}

func encodeID(b []byte, width int) string {
	if isAllZero(b) {
		return strings.Repeat("0", width*2)
	}

	padded := make([]byte, width)
	copyLen := len(b)
	if copyLen > width {
		copyLen = width
	}
	start := width - copyLen
	if start < 0 {
		start = 0
	}
	copy(padded[start:start+copyLen], b[:copyLen])

	return hex.EncodeToString(padded)
}

package serialize

import (
	"encoding/hex"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"

	collectorlogsv1 "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"

	"rask-log-pipeline/internal/model"
)

const scopeName = "rask-log-forwarder"

// OTLPSerializer groups a batch's entries by service and renders them as an
// OTLP ExportLogsServiceRequest protobuf payload.
type OTLPSerializer struct {
	forwarderVersion string
}

// NewOTLPSerializer constructs a serializer tagging every resource with the
// given forwarder version (surfaced as telemetry.sdk.version).
func NewOTLPSerializer(forwarderVersion string) *OTLPSerializer {
	return &OTLPSerializer{forwarderVersion: forwarderVersion}
}

// Serialize renders a batch as an OTLP protobuf payload. An empty batch
// returns an error: OTLP export with zero resource logs is meaningless and
// callers should not transmit it.
func (s *OTLPSerializer) Serialize(b *model.Batch) ([]byte, error) {
	if b.IsEmpty() {
		return nil, fmt.Errorf("otlp serialize: empty batch")
	}

	grouped := groupByService(b.Entries())
	req := &collectorlogsv1.ExportLogsServiceRequest{
		ResourceLogs: make([]*logsv1.ResourceLogs, 0, len(grouped)),
	}

	for _, group := range grouped {
		req.ResourceLogs = append(req.ResourceLogs, s.createResourceLogs(group))
	}

	payload, err := proto.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("otlp serialize: marshal: %w", err)
	}
	return payload, nil
}

type serviceGroup struct {
	serviceName  string
	serviceGroup string
	containerID  string
	entries      []model.EnrichedRecord
}

// groupByService partitions entries by service_name, preserving first-seen
// order so serialization is deterministic for a given batch.
func groupByService(entries []model.EnrichedRecord) []serviceGroup {
	order := make([]string, 0, 8)
	groups := make(map[string]*serviceGroup, 8)

	for _, e := range entries {
		g, ok := groups[e.ServiceName]
		if !ok {
			g = &serviceGroup{serviceName: e.ServiceName, serviceGroup: e.ServiceGroup, containerID: e.ContainerID}
			groups[e.ServiceName] = g
			order = append(order, e.ServiceName)
		}
		g.entries = append(g.entries, e)
	}

	out := make([]serviceGroup, 0, len(order))
	for _, name := range order {
		out = append(out, *groups[name])
	}
	return out
}

func (s *OTLPSerializer) createResourceLogs(g serviceGroup) *logsv1.ResourceLogs {
	attrs := []*commonv1.KeyValue{
		stringKV("service.name", g.serviceName),
		stringKV("container.id", g.containerID),
		stringKV("telemetry.sdk.name", scopeName),
		stringKV("telemetry.sdk.version", s.forwarderVersion),
	}
	if g.serviceGroup != "" {
		attrs = append(attrs, stringKV("service.namespace", g.serviceGroup))
	}

	records := make([]*logsv1.LogRecord, 0, len(g.entries))
	for _, e := range g.entries {
		records = append(records, s.createLogRecord(e))
	}

	return &logsv1.ResourceLogs{
		Resource: &resourcev1.Resource{Attributes: attrs},
		ScopeLogs: []*logsv1.ScopeLogs{
			{
				Scope:      &commonv1.InstrumentationScope{Name: scopeName},
				LogRecords: records,
			},
		},
	}
}

func (s *OTLPSerializer) createLogRecord(e model.EnrichedRecord) *logsv1.LogRecord {
	severityNumber, severityText := mapLogLevel(e.Level)
	rec := &logsv1.LogRecord{
		TimeUnixNano:         parseTimestampToNanos(e.Timestamp),
		ObservedTimeUnixNano: uint64(time.Now().UnixNano()),
		SeverityNumber:       severityNumber,
		SeverityText:         severityText,
		Body:                 &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: e.Message}},
		Attributes:           s.createLogAttributes(e),
	}

	rec.TraceId = encodeTraceID(e.TraceID)
	rec.SpanId = encodeSpanID(e.SpanID)

	return rec
}

func (s *OTLPSerializer) createLogAttributes(e model.EnrichedRecord) []*commonv1.KeyValue {
	attrs := make([]*commonv1.KeyValue, 0, 8)
	attrs = append(attrs, stringKV("log.type", string(e.LogType)))
	if e.Stream != "" {
		attrs = append(attrs, stringKV("stream", e.Stream))
	}
	if e.Method != nil {
		attrs = append(attrs, stringKV("http.method", *e.Method))
	}
	if e.Path != nil {
		attrs = append(attrs, stringKV("http.target", *e.Path))
	}
	if e.StatusCode != nil {
		attrs = append(attrs, intKV("http.status_code", int64(*e.StatusCode)))
	}
	if e.ResponseSize != nil {
		attrs = append(attrs, intKV("http.response_content_length", *e.ResponseSize))
	}
	if e.IPAddress != nil {
		attrs = append(attrs, stringKV("net.peer.ip", *e.IPAddress))
	}
	if e.UserAgent != nil {
		attrs = append(attrs, stringKV("http.user_agent", *e.UserAgent))
	}
	for k, v := range e.Fields {
		attrs = append(attrs, stringKV(k, v))
	}
	return attrs
}

func stringKV(key, value string) *commonv1.KeyValue {
	return &commonv1.KeyValue{
		Key:   key,
		Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: value}},
	}
}

func intKV(key string, value int64) *commonv1.KeyValue {
	return &commonv1.KeyValue{
		Key:   key,
		Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_IntValue{IntValue: value}},
	}
}

// mapLogLevel maps the internal LogLevel to both an OTLP SeverityNumber and
// its fixed uppercase SeverityText, exactly as the original map_log_level
// does - the two are derived from the same match so they can never disagree
// (e.g. a numeric WARN paired with a lowercase "warn" text).
func mapLogLevel(level *model.LogLevel) (logsv1.SeverityNumber, string) {
	if level == nil {
		return logsv1.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED, "UNSPECIFIED"
	}
	switch *level {
	case model.LevelTrace:
		return logsv1.SeverityNumber_SEVERITY_NUMBER_TRACE, "TRACE"
	case model.LevelDebug:
		return logsv1.SeverityNumber_SEVERITY_NUMBER_DEBUG, "DEBUG"
	case model.LevelInfo:
		return logsv1.SeverityNumber_SEVERITY_NUMBER_INFO, "INFO"
	case model.LevelWarn:
		return logsv1.SeverityNumber_SEVERITY_NUMBER_WARN, "WARN"
	case model.LevelError:
		return logsv1.SeverityNumber_SEVERITY_NUMBER_ERROR, "ERROR"
	case model.LevelFatal:
		return logsv1.SeverityNumber_SEVERITY_NUMBER_FATAL, "FATAL"
	default:
		return logsv1.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED, "UNSPECIFIED"
	}
}

// parseTimestampToNanos parses an RFC3339(Nano) timestamp into Unix epoch
// nanoseconds, falling back to the current time if parsing fails - a
// malformed timestamp must never abort serialization of an otherwise valid
// record.
func parseTimestampToNanos(ts string) uint64 {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return uint64(t.UnixNano())
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return uint64(t.UnixNano())
	}
	return uint64(time.Now().UnixNano())
}

// encodeTraceID hex-decodes a validated 32-char trace id into 16 bytes. An
// absent id yields nil (OTLP treats an empty trace_id as "no trace").
func encodeTraceID(id *string) []byte {
	if id == nil || *id == "" {
		return nil
	}
	b, err := hex.DecodeString(*id)
	if err != nil {
		return nil
	}
	return b
}

// encodeSpanID hex-decodes a validated 16-char span id into 8 bytes.
func encodeSpanID(id *string) []byte {
	if id == nil || *id == "" {
		return nil
	}
	b, err := hex.DecodeString(*id)
	if err != nil {
		return nil
	}
	return b
}

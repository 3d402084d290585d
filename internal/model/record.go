// Package model defines the data structures that flow through the log
// forwarder pipeline: the container descriptor, the Docker envelope, the
// parser's output, and the enriched record carried from buffer to batch to
// serializer.
package model

import (
	"fmt"
	"regexp"

	"rask-log-pipeline/pkg/errors"
)

// LogLevel is the standardized severity of a log record.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogType classifies what shape a parser extracted from the log line.
type LogType string

const (
	LogTypeAccess     LogType = "access"
	LogTypeError      LogType = "error"
	LogTypeStructured LogType = "structured"
	LogTypePlain      LogType = "plain"
	LogTypeUnknown    LogType = "unknown"
)

// ContainerDescriptor is the immutable identity of a container, as handed to
// the pipeline by the (external) Docker discovery collaborator.
type ContainerDescriptor struct {
	ContainerID  string
	ServiceName  string
	ServiceGroup string // optional; propagates to OTLP service.namespace
	Labels       map[string]string
}

// ParsedRecord is a parser's output before enrichment.
type ParsedRecord struct {
	ServiceType string
	LogType     LogType
	Message     string
	Level       *LogLevel
	Timestamp   string // RFC3339, optional - envelope time is used if absent
	Stream      string

	Method       *string
	Path         *string
	StatusCode   *int
	ResponseSize *int64
	IPAddress    *string
	UserAgent    *string

	TraceID *string
	SpanID  *string

	Fields map[string]string
}

var (
	traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)
	spanIDPattern  = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

// EnrichedRecord is the canonical internal record carried through the
// pipeline from the buffer onward. Invariants are checked once, at
// construction, by NewEnrichedRecord.
type EnrichedRecord struct {
	ContainerID  string
	ServiceName  string
	ServiceGroup string
	Labels       map[string]string

	Message   string
	Timestamp string // RFC3339
	Stream    string
	Level     *LogLevel

	ServiceType string
	LogType     LogType

	Method       *string
	Path         *string
	StatusCode   *int
	ResponseSize *int64
	IPAddress    *string
	UserAgent    *string

	TraceID *string
	SpanID  *string

	Fields map[string]string
}

// NewEnrichedRecord builds an EnrichedRecord from a ParsedRecord, a
// ContainerDescriptor and the envelope's time (used when the parser did not
// capture its own timestamp). It returns an error satisfying the §3
// invariants: non-empty container_id/service_name/message, well-formed
// trace/span ids, status code in [100,599], non-negative response size.
func NewEnrichedRecord(parsed ParsedRecord, container ContainerDescriptor, envelopeTime string) (*EnrichedRecord, error) {
	if container.ContainerID == "" {
		return nil, errors.InvariantError("new_enriched_record", "empty container_id")
	}
	if container.ServiceName == "" {
		return nil, errors.InvariantError("new_enriched_record", "empty service_name")
	}
	if parsed.Message == "" {
		return nil, errors.InvariantError("new_enriched_record", "empty message")
	}

	timestamp := parsed.Timestamp
	if timestamp == "" {
		timestamp = envelopeTime
	}

	if parsed.StatusCode != nil {
		if *parsed.StatusCode < 100 || *parsed.StatusCode > 599 {
			return nil, errors.InvariantError("new_enriched_record", fmt.Sprintf("status_code %d out of range", *parsed.StatusCode))
		}
	}
	if parsed.ResponseSize != nil && *parsed.ResponseSize < 0 {
		return nil, errors.InvariantError("new_enriched_record", fmt.Sprintf("negative response_size %d", *parsed.ResponseSize))
	}

	traceID, err := validateTraceID(parsed.TraceID)
	if err != nil {
		return nil, err
	}
	spanID, err := validateSpanID(parsed.SpanID)
	if err != nil {
		return nil, err
	}

	fields := parsed.Fields
	if fields == nil {
		fields = map[string]string{}
	}

	labels := container.Labels
	if labels == nil {
		labels = map[string]string{}
	}

	return &EnrichedRecord{
		ContainerID:  container.ContainerID,
		ServiceName:  container.ServiceName,
		ServiceGroup: container.ServiceGroup,
		Labels:       labels,

		Message:   parsed.Message,
		Timestamp: timestamp,
		Stream:    parsed.Stream,
		Level:     parsed.Level,

		ServiceType: parsed.ServiceType,
		LogType:     parsed.LogType,

		Method:       parsed.Method,
		Path:         parsed.Path,
		StatusCode:   parsed.StatusCode,
		ResponseSize: parsed.ResponseSize,
		IPAddress:    parsed.IPAddress,
		UserAgent:    parsed.UserAgent,

		TraceID: traceID,
		SpanID:  spanID,

		Fields: fields,
	}, nil
}

func validateTraceID(id *string) (*string, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	if !traceIDPattern.MatchString(*id) {
		return nil, errors.InvariantError("validate_trace_id", fmt.Sprintf("trace_id %q is not 32 lowercase hex chars", *id))
	}
	return id, nil
}

func validateSpanID(id *string) (*string, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	if !spanIDPattern.MatchString(*id) {
		return nil, errors.InvariantError("validate_span_id", fmt.Sprintf("span_id %q is not 16 lowercase hex chars", *id))
	}
	return id, nil
}

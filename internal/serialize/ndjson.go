// Package serialize encodes a model.Batch into the two wire formats the
// transmitter understands: newline-delimited JSON and OTLP/protobuf logs.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"rask-log-pipeline/internal/model"
)

// ndjsonRecord is the wire shape of one EnrichedRecord line. Field names
// are snake_case to match the aggregator's NDJSON ingest contract.
type ndjsonRecord struct {
	ContainerID  string            `json:"container_id"`
	ServiceName  string            `json:"service_name"`
	ServiceGroup string            `json:"service_group,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`

	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
	Stream    string      `json:"stream,omitempty"`
	Level     *model.LogLevel `json:"level,omitempty"`

	ServiceType string        `json:"service_type,omitempty"`
	LogType     model.LogType `json:"log_type,omitempty"`

	Method       *string `json:"method,omitempty"`
	Path         *string `json:"path,omitempty"`
	StatusCode   *int    `json:"status_code,omitempty"`
	ResponseSize *int64  `json:"response_size,omitempty"`
	IPAddress    *string `json:"ip_address,omitempty"`
	UserAgent    *string `json:"user_agent,omitempty"`

	TraceID *string `json:"trace_id,omitempty"`
	SpanID  *string `json:"span_id,omitempty"`

	Fields map[string]string `json:"fields,omitempty"`
}

func toNDJSONRecord(rec model.EnrichedRecord) ndjsonRecord {
	return ndjsonRecord{
		ContainerID:  rec.ContainerID,
		ServiceName:  rec.ServiceName,
		ServiceGroup: rec.ServiceGroup,
		Labels:       rec.Labels,
		Message:      rec.Message,
		Timestamp:    rec.Timestamp,
		Stream:       rec.Stream,
		Level:        rec.Level,
		ServiceType:  rec.ServiceType,
		LogType:      rec.LogType,
		Method:       rec.Method,
		Path:         rec.Path,
		StatusCode:   rec.StatusCode,
		ResponseSize: rec.ResponseSize,
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
		TraceID:      rec.TraceID,
		SpanID:       rec.SpanID,
		Fields:       rec.Fields,
	}
}

// NDJSON renders a batch as newline-delimited JSON, one object per record.
// An empty batch yields an empty payload rather than an error - the guard
// against serializing an empty batch belongs to the caller (the batcher
// never flushes zero entries, but the serializer shouldn't assume that).
func NDJSON(b *model.Batch) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range b.Entries() {
		if err := enc.Encode(toNDJSONRecord(rec)); err != nil {
			return nil, fmt.Errorf("ndjson encode: %w", err)
		}
	}
	return buf.Bytes(), nil
}

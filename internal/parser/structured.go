package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"rask-log-pipeline/internal/model"
)

// StructuredParser recognizes application-emitted JSON log lines.
type StructuredParser struct{}

func NewStructuredParser() *StructuredParser { return &StructuredParser{} }

func (p *StructuredParser) ServiceType() string    { return "structured-app" }
func (p *StructuredParser) DetectionPriority() int { return 60 }

func (p *StructuredParser) CanParse(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "{")
}

func (p *StructuredParser) ParseLog(line, stream string) (model.ParsedRecord, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &raw); err != nil {
		return model.ParsedRecord{}, fmt.Errorf("structured parser: %w", err)
	}

	rec := model.ParsedRecord{
		ServiceType: p.ServiceType(),
		LogType:     model.LogTypeStructured,
		Message:     line,
		Stream:      stream,
		Fields:      make(map[string]string),
	}

	for k, v := range raw {
		switch strings.ToLower(k) {
		case "level":
			if s, ok := v.(string); ok {
				lvl := model.LogLevel(strings.ToLower(s))
				rec.Level = &lvl
			}
		case "msg", "message":
			if s, ok := v.(string); ok {
				rec.Message = s
			}
		case "time", "timestamp":
			if s, ok := v.(string); ok {
				rec.Timestamp = s
			}
		default:
			rec.Fields[k] = stringifyJSONValue(v)
		}
	}

	return rec, nil
}

// stringifyJSONValue renders an arbitrary decoded JSON value as a string,
// for storage in a ParsedRecord's free-form fields map.
func stringifyJSONValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

package parser

import (
	"regexp"
	"strings"

	"rask-log-pipeline/internal/model"
)

// errorFullPattern matches "<time> [level] <pid>#<tid>: <message>".
var errorFullPattern = regexp.MustCompile(`^(\S+ \S+) \[(\w+)\] (\d+)#(\d+): (.*)$`)

// errorBracketPattern is the fallback: find any bracketed severity token.
var errorBracketPattern = regexp.MustCompile(`\[(\w+)\]`)

var errorLevelMap = map[string]model.LogLevel{
	"debug":  model.LevelDebug,
	"info":   model.LevelInfo,
	"notice": model.LevelInfo,
	"warn":   model.LevelWarn,
	"error":  model.LevelError,
	"crit":   model.LevelFatal,
}

// ErrorParser recognizes web-server error log lines.
type ErrorParser struct{}

func NewErrorParser() *ErrorParser { return &ErrorParser{} }

func (p *ErrorParser) ServiceType() string    { return "web-error" }
func (p *ErrorParser) DetectionPriority() int { return 75 }

func (p *ErrorParser) CanParse(line string) bool {
	m := errorBracketPattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	_, ok := errorLevelMap[strings.ToLower(m[1])]
	return ok
}

func (p *ErrorParser) ParseLog(line, stream string) (model.ParsedRecord, error) {
	rec := model.ParsedRecord{
		ServiceType: p.ServiceType(),
		LogType:     model.LogTypeError,
		Message:     line,
		Stream:      "stderr",
	}

	if m := errorFullPattern.FindStringSubmatch(line); m != nil {
		rec.Timestamp = ""
		rec.Level = mapErrorLevel(m[2])
		rec.Message = strings.TrimSpace(m[5])
		return rec, nil
	}

	if m := errorBracketPattern.FindStringSubmatch(line); m != nil {
		rec.Level = mapErrorLevel(m[1])
		return rec, nil
	}

	rec.Level = levelPtr(model.LevelError)
	return rec, nil
}

func mapErrorLevel(token string) *model.LogLevel {
	lvl, ok := errorLevelMap[strings.ToLower(token)]
	if !ok {
		lvl = model.LevelError
	}
	return &lvl
}

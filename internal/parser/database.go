package parser

import (
	"regexp"
	"strings"

	"rask-log-pipeline/internal/model"
)

// databaseSeverityPattern matches the Postgres-style severity-prefixed
// statement log line: "LOG:  statement: select 1" etc.
var databaseSeverityPattern = regexp.MustCompile(`\b(LOG|ERROR|WARNING|STATEMENT):\s*(.*)$`)

var databaseSeverityLevel = map[string]model.LogLevel{
	"LOG":       model.LevelInfo,
	"STATEMENT": model.LevelInfo,
	"WARNING":   model.LevelWarn,
	"ERROR":     model.LevelError,
}

// DatabaseParser recognizes database engine log lines carrying a
// LOG:/ERROR:/WARNING:/STATEMENT: severity prefix.
type DatabaseParser struct{}

func NewDatabaseParser() *DatabaseParser { return &DatabaseParser{} }

func (p *DatabaseParser) ServiceType() string    { return "database" }
func (p *DatabaseParser) DetectionPriority() int { return 70 }

func (p *DatabaseParser) CanParse(line string) bool {
	return databaseSeverityPattern.MatchString(line)
}

func (p *DatabaseParser) ParseLog(line, stream string) (model.ParsedRecord, error) {
	rec := model.ParsedRecord{
		ServiceType: p.ServiceType(),
		Message:     line,
		Stream:      stream,
		Fields:      make(map[string]string),
	}

	m := databaseSeverityPattern.FindStringSubmatch(line)
	if m == nil {
		rec.LogType = model.LogTypeStructured
		rec.Level = levelPtr(model.LevelInfo)
		return rec, nil
	}

	severity := strings.ToUpper(m[1])
	statement := strings.TrimSpace(m[2])
	rec.Fields["severity"] = severity
	rec.Fields["statement"] = statement
	rec.Message = statement

	lvl, ok := databaseSeverityLevel[severity]
	if !ok {
		lvl = model.LevelInfo
	}
	rec.Level = &lvl

	if lvl == model.LevelWarn || lvl == model.LevelError {
		rec.LogType = model.LogTypeError
	} else {
		rec.LogType = model.LogTypeStructured
	}

	return rec, nil
}

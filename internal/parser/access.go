package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rask-log-pipeline/internal/model"
)

// accessFullPattern matches the common/combined log format in full,
// including the optional referer/user-agent quoted fields.
var accessFullPattern = regexp.MustCompile(
	`^(\S+) \S+ \S+ \[([^\]]+)\] "(\S+) (\S+) \S+" (\d{3}) (\S+)(?: "([^"]*)")?(?: "([^"]*)")?`,
)

// accessFallbackPattern drops the timestamp bracket and referer/ua capture,
// tolerating lines where those fields are missing or malformed.
var accessFallbackPattern = regexp.MustCompile(
	`"(\S+) (\S+) \S+" (\d{3}) (\S+)`,
)

var accessMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true, "PATCH": true, "TRACE": true, "CONNECT": true,
}

// AccessParser recognizes web-server access log lines.
type AccessParser struct{}

func NewAccessParser() *AccessParser { return &AccessParser{} }

func (p *AccessParser) ServiceType() string    { return "web-access" }
func (p *AccessParser) DetectionPriority() int { return 80 }

func (p *AccessParser) CanParse(line string) bool {
	if !strings.Contains(line, "HTTP/") {
		return false
	}
	start := strings.Index(line, "\"")
	if start == -1 {
		return false
	}
	rest := line[start+1:]
	for verb := range accessMethods {
		if strings.HasPrefix(rest, verb+" ") {
			return true
		}
	}
	return false
}

func (p *AccessParser) ParseLog(line, stream string) (model.ParsedRecord, error) {
	rec := model.ParsedRecord{
		ServiceType: p.ServiceType(),
		LogType:     model.LogTypeAccess,
		Message:     line,
		Level:       levelPtr(model.LevelInfo),
		Stream:      stream,
	}

	if m := accessFullPattern.FindStringSubmatch(line); m != nil {
		rec.IPAddress = strPtr(m[1])
		rec.Method = strPtr(m[3])
		rec.Path = strPtr(m[4])
		rec.StatusCode = intPtrFromString(m[5])
		rec.ResponseSize = sizeFromField(m[6])
		if len(m) > 8 && m[8] != "" {
			rec.UserAgent = strPtr(m[8])
		}
		return rec, nil
	}

	if m := accessFallbackPattern.FindStringSubmatch(line); m != nil {
		rec.IPAddress = leadingIPAddress(line)
		rec.Method = strPtr(m[1])
		rec.Path = strPtr(m[2])
		rec.StatusCode = intPtrFromString(m[3])
		rec.ResponseSize = sizeFromField(m[4])
		return rec, nil
	}

	return parseAccessTokens(rec, line)
}

// parseAccessTokens is the whitespace-tokenizing last resort: find the
// quoted request and the two numeric fields immediately following it.
func parseAccessTokens(rec model.ParsedRecord, line string) (model.ParsedRecord, error) {
	start := strings.Index(line, "\"")
	if start == -1 {
		return rec, fmt.Errorf("access parser: no quoted request found")
	}
	end := strings.Index(line[start+1:], "\"")
	if end == -1 {
		return rec, fmt.Errorf("access parser: unterminated quoted request")
	}
	rec.IPAddress = leadingIPAddress(line)

	request := line[start+1 : start+1+end]
	parts := strings.Fields(request)
	if len(parts) >= 2 {
		rec.Method = strPtr(parts[0])
		rec.Path = strPtr(parts[1])
	}

	tail := strings.Fields(strings.TrimSpace(line[start+1+end+1:]))
	for i, tok := range tail {
		if status := intPtrFromString(tok); status != nil {
			rec.StatusCode = status
			if i+1 < len(tail) {
				rec.ResponseSize = sizeFromField(tail[i+1])
			}
			break
		}
	}

	if rec.Method == nil || rec.StatusCode == nil {
		return rec, fmt.Errorf("access parser: could not extract request/status from line")
	}
	return rec, nil
}

// leadingIPAddress recovers the client address from the first whitespace
// token of a common/combined-format line, for the fallback and token parse
// paths where the main pattern's capture groups aren't available.
func leadingIPAddress(line string) *string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return strPtr(fields[0])
}

func sizeFromField(field string) *int64 {
	if field == "-" {
		var zero int64
		return &zero
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func intPtrFromString(field string) *int {
	n, err := strconv.Atoi(field)
	if err != nil {
		return nil
	}
	return &n
}

func strPtr(s string) *string { return &s }

func levelPtr(l model.LogLevel) *model.LogLevel { return &l }

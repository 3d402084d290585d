// Package parser turns a decoded Docker envelope's log line into a
// model.ParsedRecord, via a priority-ordered registry of service-specific
// parsers with an explicit service-to-parser override map.
package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"rask-log-pipeline/internal/model"
	"rask-log-pipeline/pkg/errors"
)

// ServiceParser recognizes and extracts structured fields from one family
// of log line, identified by ServiceType.
type ServiceParser interface {
	ServiceType() string
	DetectionPriority() int
	CanParse(line string) bool
	ParseLog(line string, stream string) (model.ParsedRecord, error)
}

// Registry holds the set of registered parsers, an explicit service-name to
// parser-type mapping, and the priority-sorted auto-detection order.
type Registry struct {
	mu              sync.RWMutex
	parsers         map[string]ServiceParser
	serviceMappings map[string]string
	detectionOrder  []string
}

// NewRegistry returns an empty registry. Use RegisterParser to populate it.
func NewRegistry() *Registry {
	return &Registry{
		parsers:         make(map[string]ServiceParser),
		serviceMappings: make(map[string]string),
		detectionOrder:  nil,
	}
}

// RegisterParser adds a parser, keyed by its ServiceType, and re-sorts the
// auto-detection order by descending priority. Registering a parser twice
// under the same service type replaces the previous one.
func (r *Registry) RegisterParser(p ServiceParser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	serviceType := p.ServiceType()
	if _, exists := r.parsers[serviceType]; !exists {
		r.detectionOrder = append(r.detectionOrder, serviceType)
	}
	r.parsers[serviceType] = p

	sort.SliceStable(r.detectionOrder, func(i, j int) bool {
		return r.parsers[r.detectionOrder[i]].DetectionPriority() > r.parsers[r.detectionOrder[j]].DetectionPriority()
	})
}

// MapService assigns a concrete parser type to a service name, bypassing
// auto-detection for any log line carrying that service name.
func (r *Registry) MapService(serviceName, parserType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serviceMappings[serviceName] = parserType
}

// LoadMappingsFromEnv parses the "service1:parser1,service2:parser2" format
// used by the RASK_SERVICE_PARSER_MAP environment variable.
func (r *Registry) LoadMappingsFromEnv(value string) {
	if value == "" {
		return
	}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		r.MapService(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
}

// GetParserForService returns the parser mapped to a service name, if any.
func (r *Registry) GetParserForService(serviceName string) (ServiceParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parserType, ok := r.serviceMappings[serviceName]
	if !ok {
		return nil, false
	}
	p, ok := r.parsers[parserType]
	return p, ok
}

// GetParser returns a registered parser by its service type.
func (r *Registry) GetParser(parserType string) (ServiceParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[parserType]
	return p, ok
}

// DetectParser walks the priority-sorted detection order and returns the
// first parser whose CanParse reports true for the line.
func (r *Registry) DetectParser(line string) (ServiceParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, serviceType := range r.detectionOrder {
		p := r.parsers[serviceType]
		if p.CanParse(line) {
			return p, true
		}
	}
	return nil, false
}

// ParseLog resolves a parser for the line - first via the service's explicit
// mapping, then via auto-detection - and parses it. An unmapped service with
// no detected parser is an error; the registry does not fall back to the
// plain parser on its own. NewDefaultRegistry registers PlainParser, which
// matches every line, so a default registry never returns this error.
func (r *Registry) ParseLog(serviceName, line, stream string) (model.ParsedRecord, error) {
	if p, ok := r.GetParserForService(serviceName); ok {
		return p.ParseLog(line, stream)
	}
	if p, ok := r.DetectParser(line); ok {
		return p.ParseLog(line, stream)
	}
	return model.ParsedRecord{}, errors.ParseError("parse_log", fmt.Sprintf("no parser matched service %q", serviceName))
}

// ParserTypes returns the registered service types, in detection order.
func (r *Registry) ParserTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.detectionOrder))
	copy(out, r.detectionOrder)
	return out
}

// ServiceMappings returns a copy of the explicit service-to-parser map.
func (r *Registry) ServiceMappings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.serviceMappings))
	for k, v := range r.serviceMappings {
		out[k] = v
	}
	return out
}

// HasParser reports whether a parser type is registered.
func (r *Registry) HasParser(parserType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.parsers[parserType]
	return ok
}

// HasServiceMapping reports whether a service name has an explicit mapping.
func (r *Registry) HasServiceMapping(serviceName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.serviceMappings[serviceName]
	return ok
}

// NewDefaultRegistry registers the five built-in parsers at their standard
// priorities and returns the populated registry.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterParser(NewAccessParser())
	r.RegisterParser(NewErrorParser())
	r.RegisterParser(NewStructuredParser())
	r.RegisterParser(NewDatabaseParser())
	r.RegisterParser(NewPlainParser())
	return r
}

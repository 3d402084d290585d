package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rask-log-pipeline/internal/model"
)

type mockParser struct {
	serviceType string
	priority    int
	canParse    func(string) bool
}

func (m *mockParser) ServiceType() string    { return m.serviceType }
func (m *mockParser) DetectionPriority() int { return m.priority }
func (m *mockParser) CanParse(line string) bool {
	return m.canParse(line)
}
func (m *mockParser) ParseLog(line, stream string) (model.ParsedRecord, error) {
	return model.ParsedRecord{ServiceType: m.serviceType, Message: line, Stream: stream}, nil
}

func TestRegistry_DetectionOrderIsPriorityDescending(t *testing.T) {
	r := NewRegistry()
	r.RegisterParser(&mockParser{serviceType: "low", priority: 10, canParse: func(string) bool { return false }})
	r.RegisterParser(&mockParser{serviceType: "high", priority: 90, canParse: func(string) bool { return false }})
	r.RegisterParser(&mockParser{serviceType: "mid", priority: 50, canParse: func(string) bool { return false }})

	assert.Equal(t, []string{"high", "mid", "low"}, r.ParserTypes())
}

func TestRegistry_DetectParser_FirstMatchWins(t *testing.T) {
	r := NewRegistry()
	r.RegisterParser(&mockParser{serviceType: "a", priority: 10, canParse: func(string) bool { return true }})
	r.RegisterParser(&mockParser{serviceType: "b", priority: 90, canParse: func(string) bool { return true }})

	p, ok := r.DetectParser("anything")
	require.True(t, ok)
	assert.Equal(t, "b", p.ServiceType())
}

func TestRegistry_MappedServiceBypassesDetection(t *testing.T) {
	r := NewRegistry()
	r.RegisterParser(&mockParser{serviceType: "a", priority: 90, canParse: func(string) bool { return true }})
	r.RegisterParser(&mockParser{serviceType: "b", priority: 10, canParse: func(string) bool { return true }})
	r.MapService("checkout", "b")

	rec, err := r.ParseLog("checkout", "anything", "stdout")
	require.NoError(t, err)
	assert.Equal(t, "b", rec.ServiceType)
}

func TestRegistry_UnmappedServiceFallsBackToDetection(t *testing.T) {
	r := NewRegistry()
	r.RegisterParser(&mockParser{serviceType: "a", priority: 90, canParse: func(string) bool { return true }})

	rec, err := r.ParseLog("unmapped-service", "anything", "stdout")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.ServiceType)
}

func TestRegistry_NoParserMatches_ReturnsError(t *testing.T) {
	r := NewRegistry()
	r.RegisterParser(&mockParser{serviceType: "a", priority: 90, canParse: func(string) bool { return false }})

	_, err := r.ParseLog("unmapped-service", "anything", "stdout")
	assert.Error(t, err)
}

func TestRegistry_LoadMappingsFromEnv(t *testing.T) {
	r := NewRegistry()
	r.LoadMappingsFromEnv("checkout:web-access,billing:database")

	assert.True(t, r.HasServiceMapping("checkout"))
	assert.True(t, r.HasServiceMapping("billing"))
	mappings := r.ServiceMappings()
	assert.Equal(t, "web-access", mappings["checkout"])
	assert.Equal(t, "database", mappings["billing"])
}

func TestNewDefaultRegistry_PlainParserIsFloor(t *testing.T) {
	r := NewDefaultRegistry()
	types := r.ParserTypes()
	require.NotEmpty(t, types)
	assert.Equal(t, "plain", types[len(types)-1])
}

func TestNewDefaultRegistry_PlainParserAlwaysMatches(t *testing.T) {
	r := NewDefaultRegistry()
	rec, err := r.ParseLog("unmapped-service", "totally unstructured line of text", "stdout")
	require.NoError(t, err)
	assert.Equal(t, model.LogTypePlain, rec.LogType)
}

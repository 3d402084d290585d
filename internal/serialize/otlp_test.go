package serialize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	collectorlogsv1 "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"

	"rask-log-pipeline/internal/model"
)

func TestOTLPSerializer_RejectsEmptyBatch(t *testing.T) {
	s := NewOTLPSerializer("v1.0.0")
	_, err := s.Serialize(&model.Batch{})
	assert.Error(t, err)
}

func TestOTLPSerializer_GroupsByServiceIntoResourceLogs(t *testing.T) {
	e1 := model.EnrichedRecord{ContainerID: "c1", ServiceName: "web", Message: "hello", Timestamp: "2024-01-01T00:00:00Z", Level: levelPtrForTest(model.LevelInfo)}
	e2 := model.EnrichedRecord{ContainerID: "c2", ServiceName: "db", Message: "query failed", Timestamp: "2024-01-01T00:00:01Z", Level: levelPtrForTest(model.LevelError)}
	b, err := model.NewBatch(1, model.BatchSizeBased, []model.EnrichedRecord{e1, e2}, time.Now())
	require.NoError(t, err)

	s := NewOTLPSerializer("v1.0.0")
	payload, err := s.Serialize(b)
	require.NoError(t, err)

	var req collectorlogsv1.ExportLogsServiceRequest
	require.NoError(t, proto.Unmarshal(payload, &req))
	require.Len(t, req.ResourceLogs, 2)

	var sawError, sawInfo bool
	for _, rl := range req.ResourceLogs {
		require.Len(t, rl.ScopeLogs, 1)
		for _, lr := range rl.ScopeLogs[0].LogRecords {
			switch lr.SeverityNumber {
			case logsv1.SeverityNumber_SEVERITY_NUMBER_ERROR:
				sawError = true
			case logsv1.SeverityNumber_SEVERITY_NUMBER_INFO:
				sawInfo = true
			}
		}
	}
	assert.True(t, sawError)
	assert.True(t, sawInfo)
}

func TestMapLogLevel_ReturnsFixedUppercaseText(t *testing.T) {
	cases := []struct {
		level    *model.LogLevel
		wantNum  logsv1.SeverityNumber
		wantText string
	}{
		{nil, logsv1.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED, "UNSPECIFIED"},
		{levelPtrForTest(model.LevelTrace), logsv1.SeverityNumber_SEVERITY_NUMBER_TRACE, "TRACE"},
		{levelPtrForTest(model.LevelDebug), logsv1.SeverityNumber_SEVERITY_NUMBER_DEBUG, "DEBUG"},
		{levelPtrForTest(model.LevelInfo), logsv1.SeverityNumber_SEVERITY_NUMBER_INFO, "INFO"},
		{levelPtrForTest(model.LevelWarn), logsv1.SeverityNumber_SEVERITY_NUMBER_WARN, "WARN"},
		{levelPtrForTest(model.LevelError), logsv1.SeverityNumber_SEVERITY_NUMBER_ERROR, "ERROR"},
		{levelPtrForTest(model.LevelFatal), logsv1.SeverityNumber_SEVERITY_NUMBER_FATAL, "FATAL"},
	}
	for _, tc := range cases {
		num, text := mapLogLevel(tc.level)
		assert.Equal(t, tc.wantNum, num)
		assert.Equal(t, tc.wantText, text)
	}
}

func TestCreateLogRecord_SeverityTextMatchesNumber(t *testing.T) {
	s := NewOTLPSerializer("v1.0.0")
	e := model.EnrichedRecord{ContainerID: "c1", ServiceName: "web", Message: "hi", Timestamp: "2024-01-01T00:00:00Z", Level: levelPtrForTest(model.LevelWarn)}
	rec := s.createLogRecord(e)
	assert.Equal(t, "WARN", rec.SeverityText)
	assert.Equal(t, logsv1.SeverityNumber_SEVERITY_NUMBER_WARN, rec.SeverityNumber)
}

func TestCreateLogAttributes_IncludesIPAddress(t *testing.T) {
	s := NewOTLPSerializer("v1.0.0")
	ip := "192.168.1.1"
	e := model.EnrichedRecord{ContainerID: "c1", ServiceName: "web", Message: "hi", Timestamp: "2024-01-01T00:00:00Z", IPAddress: &ip}
	attrs := s.createLogAttributes(e)

	var found bool
	for _, kv := range attrs {
		if kv.Key == "net.peer.ip" {
			found = true
			assert.Equal(t, ip, kv.Value.GetStringValue())
		}
	}
	assert.True(t, found, "net.peer.ip attribute should be present when IPAddress is set")
}

func TestEncodeTraceID_ValidHexDecodesTo16Bytes(t *testing.T) {
	id := "0102030405060708090a0b0c0d0e0f10"
	out := encodeTraceID(&id)
	assert.Len(t, out, 16)
}

func TestEncodeTraceID_NilYieldsNoBytes(t *testing.T) {
	assert.Nil(t, encodeTraceID(nil))
}

func TestEncodeSpanID_ValidHexDecodesTo8Bytes(t *testing.T) {
	id := "0102030405060708"
	out := encodeSpanID(&id)
	assert.Len(t, out, 8)
}

func levelPtrForTest(l model.LogLevel) *model.LogLevel { return &l }

package serialize

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rask-log-pipeline/internal/model"
)

func makeBatch(t *testing.T, entries ...model.EnrichedRecord) *model.Batch {
	t.Helper()
	b, err := model.NewBatch(1, model.BatchSizeBased, entries, time.Now())
	require.NoError(t, err)
	return b
}

func TestNDJSON_OneLinePerRecord(t *testing.T) {
	e1 := model.EnrichedRecord{ContainerID: "c1", ServiceName: "s1", Message: "m1", Timestamp: "t1"}
	e2 := model.EnrichedRecord{ContainerID: "c1", ServiceName: "s1", Message: "m2", Timestamp: "t2"}
	b := makeBatch(t, e1, e2)

	out, err := NDJSON(b)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var decoded ndjsonRecord
	require.NoError(t, json.Unmarshal(lines[0], &decoded))
	assert.Equal(t, "m1", decoded.Message)
}

func TestNDJSON_OmitsAbsentOptionalFields(t *testing.T) {
	e := model.EnrichedRecord{ContainerID: "c1", ServiceName: "s1", Message: "m", Timestamp: "t"}
	b := makeBatch(t, e)

	out, err := NDJSON(b)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "trace_id")
	assert.NotContains(t, string(out), "status_code")
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rask-log-pipeline/internal/model"
)

func TestDatabaseParser_CanParse(t *testing.T) {
	p := NewDatabaseParser()
	assert.True(t, p.CanParse(`2024-01-01 00:00:00 UTC LOG:  statement: select 1`))
	assert.False(t, p.CanParse(`no severity prefix here`))
}

func TestDatabaseParser_WarnAndAboveMapsToErrorLogType(t *testing.T) {
	p := NewDatabaseParser()
	rec, err := p.ParseLog(`2024-01-01 00:00:00 UTC ERROR:  duplicate key value`, "stdout")
	require.NoError(t, err)
	assert.Equal(t, model.LogTypeError, rec.LogType)
	require.NotNil(t, rec.Level)
	assert.Equal(t, model.LevelError, *rec.Level)
	assert.Equal(t, "duplicate key value", rec.Fields["statement"])
}

func TestDatabaseParser_InfoSeverityMapsToStructured(t *testing.T) {
	p := NewDatabaseParser()
	rec, err := p.ParseLog(`2024-01-01 00:00:00 UTC LOG:  statement: select 1`, "stdout")
	require.NoError(t, err)
	assert.Equal(t, model.LogTypeStructured, rec.LogType)
	require.NotNil(t, rec.Level)
	assert.Equal(t, model.LevelInfo, *rec.Level)
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rask-log-pipeline/internal/model"
)

func TestErrorParser_CanParse(t *testing.T) {
	p := NewErrorParser()
	assert.True(t, p.CanParse(`2023/10/10 13:55:36 [error] 1234#0: connection refused`))
	assert.False(t, p.CanParse(`plain line with no severity token`))
}

func TestErrorParser_FullPattern(t *testing.T) {
	p := NewErrorParser()
	line := `2023/10/10 13:55:36 [error] 1234#0: connect() failed`
	rec, err := p.ParseLog(line, "stdout")
	require.NoError(t, err)
	assert.Equal(t, model.LogTypeError, rec.LogType)
	assert.Equal(t, "stderr", rec.Stream)
	require.NotNil(t, rec.Level)
	assert.Equal(t, model.LevelError, *rec.Level)
	assert.Equal(t, "connect() failed", rec.Message)
}

func TestErrorParser_BracketFallback(t *testing.T) {
	p := NewErrorParser()
	line := `garbled line [warn] something happened without the pid#tid shape`
	rec, err := p.ParseLog(line, "stdout")
	require.NoError(t, err)
	require.NotNil(t, rec.Level)
	assert.Equal(t, model.LevelWarn, *rec.Level)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Endpoint = "https://collector.example.com/ingest"
	return cfg
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, Validate(&cfg))
}

func TestValidate_RejectsMissingEndpointForNDJSON(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoint = ""
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RejectsNonHTTPEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoint = "ftp://example.com/ingest"
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RequiresOTLPEndpointWhenProtocolIsOTLP(t *testing.T) {
	cfg := validConfig()
	cfg.Protocol = "otlp"
	cfg.OTLPEndpoint = ""
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "otlp_endpoint")
}

func TestValidate_RejectsBatchSizeOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.BatchSize = 0
	assert.Error(t, Validate(&cfg))

	cfg.BatchSize = 100001
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RejectsBufferCapacityBelowBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.BatchSize = 1000
	cfg.BufferCapacity = 10
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RejectsBackpressureThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.BackpressureThreshold = 1.5
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RejectsRetryMaxDelayBelowBaseDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Retry.BaseDelay = "1s"
	cfg.Retry.MaxDelay = "100ms"
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RejectsInvalidRetryDelayStrings(t *testing.T) {
	cfg := validConfig()
	cfg.Retry.BaseDelay = "not-a-duration"
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RequiresDiskFallbackPathWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.DiskFallback.Enabled = true
	cfg.DiskFallback.Path = ""
	assert.Error(t, Validate(&cfg))
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, Validate(&cfg))
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoint = ""
	cfg.BatchSize = -1
	cfg.LogLevel = "nope"
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: https://file.example.com/ingest\nbatch_size: 500\n"), 0o644))

	t.Setenv("BATCH_SIZE", "750")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com/ingest", cfg.Endpoint)
	assert.Equal(t, 750, cfg.BatchSize)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("RASK_ENDPOINT", "https://env.example.com/ingest")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/ingest", cfg.Endpoint)
	assert.Equal(t, DefaultConfig().BatchSize, cfg.BatchSize)
}

func TestConfig_TranslationHelpers(t *testing.T) {
	cfg := validConfig()
	cfg.FlushIntervalMs = 2500
	cfg.ConnectionTimeoutSecs = 10

	assert.Equal(t, 2500*time.Millisecond, cfg.FlushInterval())
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout())

	bufCfg := cfg.BufferConfig()
	assert.Equal(t, cfg.BufferCapacity, bufCfg.Capacity)
	assert.True(t, bufCfg.EnableBackpressure)

	retryCfg := cfg.RetryManagerConfig()
	assert.Equal(t, cfg.Retry.MaxAttempts, retryCfg.MaxAttempts)

	spillCfg := cfg.SpillConfig()
	assert.Equal(t, cfg.DiskFallback.Path, spillCfg.Path)
}

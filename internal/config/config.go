// Package config loads the forwarder's configuration surface (§6): a YAML
// file plus environment variable overrides, validated before the pipeline
// starts. It owns no CLI argument parsing — that is the caller's job; this
// package implements the surface a CLI/config loader calls into.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"rask-log-pipeline/internal/buffer"
	"rask-log-pipeline/internal/reliability"
	"rask-log-pipeline/pkg/errors"
)

// RetryConfig mirrors reliability.RetryConfig's YAML/env-facing shape.
// Delays are stored as duration strings (e.g. "500ms"), matching the
// teacher's convention for YAML-configured timeouts; parsedBaseDelay/
// parsedMaxDelay do the parsing.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelay   string  `yaml:"base_delay"`
	MaxDelay    string  `yaml:"max_delay"`
	Jitter      float64 `yaml:"jitter"`
}

func (r RetryConfig) parsedBaseDelay() time.Duration {
	if d, err := time.ParseDuration(r.BaseDelay); err == nil {
		return d
	}
	return 500 * time.Millisecond
}

func (r RetryConfig) parsedMaxDelay() time.Duration {
	if d, err := time.ParseDuration(r.MaxDelay); err == nil {
		return d
	}
	return 30 * time.Second
}

// DiskFallbackConfig mirrors reliability.SpillConfig's YAML/env-facing shape.
type DiskFallbackConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	MaxDiskUsageMB int64  `yaml:"max_disk_usage_mb"`
	RetentionHours int    `yaml:"retention_hours"`
	Compression    bool   `yaml:"compression"`
}

// Config is the full configuration surface named in §6.
type Config struct {
	Endpoint     string `yaml:"endpoint"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Protocol     string `yaml:"protocol"`

	BatchSize       int `yaml:"batch_size"`
	FlushIntervalMs int `yaml:"flush_interval_ms"`

	BufferCapacity        int     `yaml:"buffer_capacity"`
	BackpressureThreshold float64 `yaml:"backpressure_threshold"`

	ConnectionTimeoutSecs int `yaml:"connection_timeout_secs"`
	MaxConnections        int `yaml:"max_connections"`

	Retry        RetryConfig        `yaml:"retry"`
	DiskFallback DiskFallbackConfig `yaml:"disk_fallback"`

	TargetService string `yaml:"target_service"`

	EnableCompression bool   `yaml:"enable_compression"`
	LogLevel          string `yaml:"log_level"`
}

// DefaultConfig mirrors the documented defaults for every key in §6 that has
// one.
func DefaultConfig() Config {
	return Config{
		Protocol:              "ndjson",
		BatchSize:             1000,
		FlushIntervalMs:       5000,
		BufferCapacity:        100000,
		BackpressureThreshold: 0.8,
		ConnectionTimeoutSecs: 30,
		MaxConnections:        50,
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   "500ms",
			MaxDelay:    "30s",
			Jitter:      0.2,
		},
		DiskFallback: DiskFallbackConfig{
			Enabled:        false,
			Path:           "/var/lib/rask/fallback",
			MaxDiskUsageMB: 1024,
			RetentionHours: 24,
			Compression:    true,
		},
		EnableCompression: true,
		LogLevel:          "info",
	}
}

// Load builds a Config by layering a YAML file (if configFile is non-empty)
// over DefaultConfig, then applying RASK_*-prefixed environment overrides,
// then validating. Mirrors the load -> defaults -> env override -> validate
// pipeline order.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if err := loadFile(configFile, &cfg); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", configFile, err)
		}
	}

	applyEnvironmentOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvironmentOverrides mirrors the documented RASK_*/BATCH_SIZE-style
// env var layout: each key upper-snake-cased, optionally RASK_-prefixed.
func applyEnvironmentOverrides(cfg *Config) {
	cfg.Endpoint = getEnvString("RASK_ENDPOINT", cfg.Endpoint)
	cfg.OTLPEndpoint = getEnvString("RASK_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.Protocol = getEnvString("RASK_PROTOCOL", cfg.Protocol)

	cfg.BatchSize = getEnvInt("BATCH_SIZE", cfg.BatchSize)
	cfg.FlushIntervalMs = getEnvInt("RASK_FLUSH_INTERVAL_MS", cfg.FlushIntervalMs)

	cfg.BufferCapacity = getEnvInt("RASK_BUFFER_CAPACITY", cfg.BufferCapacity)
	cfg.BackpressureThreshold = getEnvFloat("RASK_BACKPRESSURE_THRESHOLD", cfg.BackpressureThreshold)

	cfg.ConnectionTimeoutSecs = getEnvInt("RASK_CONNECTION_TIMEOUT_SECS", cfg.ConnectionTimeoutSecs)
	cfg.MaxConnections = getEnvInt("RASK_MAX_CONNECTIONS", cfg.MaxConnections)

	cfg.Retry.MaxAttempts = getEnvInt("RASK_RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BaseDelay = getEnvString("RASK_RETRY_BASE_DELAY", cfg.Retry.BaseDelay)
	cfg.Retry.MaxDelay = getEnvString("RASK_RETRY_MAX_DELAY", cfg.Retry.MaxDelay)
	cfg.Retry.Jitter = getEnvFloat("RASK_RETRY_JITTER", cfg.Retry.Jitter)

	cfg.DiskFallback.Enabled = getEnvBool("RASK_DISK_FALLBACK_ENABLED", cfg.DiskFallback.Enabled)
	cfg.DiskFallback.Path = getEnvString("RASK_DISK_FALLBACK_PATH", cfg.DiskFallback.Path)
	cfg.DiskFallback.MaxDiskUsageMB = int64(getEnvInt("RASK_DISK_FALLBACK_MAX_DISK_USAGE_MB", int(cfg.DiskFallback.MaxDiskUsageMB)))
	cfg.DiskFallback.RetentionHours = getEnvInt("RASK_DISK_FALLBACK_RETENTION_HOURS", cfg.DiskFallback.RetentionHours)
	cfg.DiskFallback.Compression = getEnvBool("RASK_DISK_FALLBACK_COMPRESSION", cfg.DiskFallback.Compression)

	cfg.TargetService = getEnvString("RASK_TARGET_SERVICE", cfg.TargetService)
	cfg.EnableCompression = getEnvBool("RASK_ENABLE_COMPRESSION", cfg.EnableCompression)
	cfg.LogLevel = getEnvString("RASK_LOG_LEVEL", cfg.LogLevel)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// Validate enforces every constraint named in §6's key table, collecting
// every violation rather than stopping at the first so a misconfigured
// deployment sees the whole list at once.
func Validate(cfg *Config) error {
	v := &validator{cfg: cfg}
	v.run()
	if len(v.errs) > 0 {
		msgs := make([]string, len(v.errs))
		for i, e := range v.errs {
			msgs[i] = e.Error()
		}
		return errors.ConfigError("validate", strings.Join(msgs, "; "))
	}
	return nil
}

type validator struct {
	cfg  *Config
	errs []error
}

func (v *validator) fail(field, message string) {
	v.errs = append(v.errs, fmt.Errorf("%s: %s", field, message))
}

func (v *validator) run() {
	v.validateEndpoints()
	v.validateProtocol()
	v.validateBatching()
	v.validateBuffer()
	v.validateTransport()
	v.validateRetry()
	v.validateDiskFallback()
	v.validateLogLevel()
}

func (v *validator) validateEndpoints() {
	switch v.cfg.Protocol {
	case "otlp":
		if v.cfg.OTLPEndpoint == "" {
			v.fail("otlp_endpoint", "required when protocol is otlp")
			return
		}
		validateHTTPURL(v, "otlp_endpoint", v.cfg.OTLPEndpoint)
	default:
		if v.cfg.Endpoint == "" {
			v.fail("endpoint", "required when protocol is ndjson")
			return
		}
		validateHTTPURL(v, "endpoint", v.cfg.Endpoint)
	}
}

func validateHTTPURL(v *validator, field, raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		v.fail(field, fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.fail(field, "must be http or https")
	}
}

func (v *validator) validateProtocol() {
	if v.cfg.Protocol != "ndjson" && v.cfg.Protocol != "otlp" {
		v.fail("protocol", fmt.Sprintf("must be ndjson or otlp, got %q", v.cfg.Protocol))
	}
}

func (v *validator) validateBatching() {
	if v.cfg.BatchSize < 1 || v.cfg.BatchSize > 100000 {
		v.fail("batch_size", fmt.Sprintf("must be in [1, 100000], got %d", v.cfg.BatchSize))
	}
	if v.cfg.FlushIntervalMs <= 0 {
		v.fail("flush_interval_ms", "must be > 0")
	}
}

func (v *validator) validateBuffer() {
	if v.cfg.BufferCapacity < v.cfg.BatchSize {
		v.fail("buffer_capacity", "must be >= batch_size")
	}
	if v.cfg.BackpressureThreshold < 0 || v.cfg.BackpressureThreshold > 1 {
		v.fail("backpressure_threshold", "must be in [0, 1]")
	}
}

func (v *validator) validateTransport() {
	if v.cfg.ConnectionTimeoutSecs <= 0 {
		v.fail("connection_timeout_secs", "must be > 0")
	}
	if v.cfg.MaxConnections <= 0 {
		v.fail("max_connections", "must be > 0")
	}
}

func (v *validator) validateRetry() {
	if v.cfg.Retry.MaxAttempts < 1 {
		v.fail("retry.max_attempts", "must be >= 1")
	}

	base, err := time.ParseDuration(v.cfg.Retry.BaseDelay)
	if err != nil || base <= 0 {
		v.fail("retry.base_delay", fmt.Sprintf("invalid duration %q", v.cfg.Retry.BaseDelay))
	}
	maxDelay, err := time.ParseDuration(v.cfg.Retry.MaxDelay)
	if err != nil {
		v.fail("retry.max_delay", fmt.Sprintf("invalid duration %q", v.cfg.Retry.MaxDelay))
	} else if maxDelay < base {
		v.fail("retry.max_delay", "must be >= base_delay")
	}

	if v.cfg.Retry.Jitter < 0 || v.cfg.Retry.Jitter > 1 {
		v.fail("retry.jitter", "must be in [0, 1]")
	}
}

func (v *validator) validateDiskFallback() {
	if !v.cfg.DiskFallback.Enabled {
		return
	}
	if v.cfg.DiskFallback.Path == "" {
		v.fail("disk_fallback.path", "required when disk_fallback is enabled")
	}
	if v.cfg.DiskFallback.MaxDiskUsageMB < 0 {
		v.fail("disk_fallback.max_disk_usage_mb", "must be >= 0")
	}
	if v.cfg.DiskFallback.RetentionHours <= 0 {
		v.fail("disk_fallback.retention_hours", "must be > 0")
	}
}

func (v *validator) validateLogLevel() {
	valid := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !valid[v.cfg.LogLevel] {
		v.fail("log_level", fmt.Sprintf("invalid log level: %s", v.cfg.LogLevel))
	}
}

// BufferConfig translates the configuration surface into buffer.Config.
func (c Config) BufferConfig() buffer.Config {
	return buffer.Config{
		Capacity:              c.BufferCapacity,
		BatchSize:             c.BatchSize,
		BatchTimeout:          c.FlushInterval(),
		EnableBackpressure:    true,
		BackpressureThreshold: c.BackpressureThreshold,
		BackpressureDelay:     100 * time.Microsecond,
	}
}

// RetryManagerConfig translates the configuration surface into
// reliability.RetryConfig.
func (c Config) RetryManagerConfig() reliability.RetryConfig {
	return reliability.RetryConfig{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.parsedBaseDelay(),
		MaxDelay:    c.Retry.parsedMaxDelay(),
		JitterPct:   c.Retry.Jitter,
	}
}

// SpillConfig translates the configuration surface into
// reliability.SpillConfig.
func (c Config) SpillConfig() reliability.SpillConfig {
	return reliability.SpillConfig{
		Enabled:        c.DiskFallback.Enabled,
		Path:           c.DiskFallback.Path,
		MaxDiskUsageMB: c.DiskFallback.MaxDiskUsageMB,
		RetentionHours: c.DiskFallback.RetentionHours,
		Compression:    c.DiskFallback.Compression,
	}
}

// FlushInterval returns flush_interval_ms as a time.Duration for the
// batcher's MaxWait.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// ConnectionTimeout returns connection_timeout_secs as a time.Duration for
// the transmitter.
func (c Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutSecs) * time.Second
}

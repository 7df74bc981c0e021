/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andref2015/train-agent/internal/models"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backends.
const (
	EventBusMemory = "memory"
	EventBusRedis  = "redis"
	EventBusNATS   = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	// Schedule source and browser
	SourceBaseURL       string
	BrowserBin          string
	BrowserHeadless     bool
	BrowserMaxSessions  int
	FetchAttemptTimeout time.Duration
	FetchSettle         time.Duration
	FetchRetries        int
	FetchBackoff        time.Duration
	QueryTimeout        time.Duration

	// Query defaults
	DefaultAfterTime string
	DefaultLimit     int
	CitiesFile       string // optional YAML replacing the built-in city table

	// Event bus
	EventBus      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	InstanceID    string

	// Query log; disabled when DBDSN is empty
	DBBackend DatabaseBackend
	DBDSN     string

	// Admin endpoints require a bearer token when set
	JWTSigningKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LogBufferSize     int
	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"TRAINAGENT_ENV", "ENVIRONMENT"}, "development"),
		HTTPBind:    getEnvAny([]string{"TRAINAGENT_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"TRAINAGENT_HTTP_PORT", "PORT"}, 8000),
		MetricsBind: getEnvAny([]string{"TRAINAGENT_METRICS_BIND"}, "127.0.0.1:9000"),

		SourceBaseURL:       getEnvAny([]string{"TRAINAGENT_SOURCE_BASE_URL"}, "https://elron.pilet.ee/en/otsing"),
		BrowserBin:          getEnvAny([]string{"TRAINAGENT_BROWSER_BIN", "CHROME_BIN"}, ""),
		BrowserHeadless:     getEnvBoolAny([]string{"TRAINAGENT_BROWSER_HEADLESS"}, true),
		BrowserMaxSessions:  getEnvIntAny([]string{"TRAINAGENT_BROWSER_MAX_SESSIONS"}, 2),
		FetchAttemptTimeout: getEnvMillisAny([]string{"TRAINAGENT_FETCH_ATTEMPT_TIMEOUT_MS"}, 8*time.Second),
		FetchSettle:         getEnvMillisAny([]string{"TRAINAGENT_FETCH_SETTLE_MS"}, 1500*time.Millisecond),
		FetchRetries:        getEnvIntAny([]string{"TRAINAGENT_FETCH_RETRIES"}, 2),
		FetchBackoff:        getEnvMillisAny([]string{"TRAINAGENT_FETCH_BACKOFF_MS"}, 500*time.Millisecond),
		QueryTimeout:        time.Duration(getEnvIntAny([]string{"TRAINAGENT_QUERY_TIMEOUT_SECONDS"}, 30)) * time.Second,

		DefaultAfterTime: getEnvAny([]string{"TRAINAGENT_DEFAULT_AFTER_TIME"}, models.DefaultAfterTime),
		DefaultLimit:     getEnvIntAny([]string{"TRAINAGENT_DEFAULT_LIMIT"}, models.DefaultLimit),
		CitiesFile:       getEnvAny([]string{"TRAINAGENT_CITIES_FILE"}, ""),

		EventBus:      strings.ToLower(getEnvAny([]string{"TRAINAGENT_EVENTBUS"}, EventBusMemory)),
		RedisAddr:     getEnvAny([]string{"TRAINAGENT_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"TRAINAGENT_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"TRAINAGENT_REDIS_DB", "REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"TRAINAGENT_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		InstanceID:    getEnvAny([]string{"TRAINAGENT_INSTANCE_ID"}, ""),

		DBBackend: DatabaseBackend(getEnvAny([]string{"TRAINAGENT_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"TRAINAGENT_DB_DSN"}, ""),

		JWTSigningKey: getEnvAny([]string{"TRAINAGENT_JWT_SIGNING_KEY"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"TRAINAGENT_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"TRAINAGENT_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"TRAINAGENT_TRACING_SAMPLE_RATE"}, 1.0),

		LogBufferSize: getEnvIntAny([]string{"TRAINAGENT_LOG_BUFFER_SIZE"}, 5000),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	switch c.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return fmt.Errorf("unsupported event bus %q (want memory, redis or nats)", c.EventBus)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("TRAINAGENT_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.BrowserMaxSessions < 1 {
		return fmt.Errorf("TRAINAGENT_BROWSER_MAX_SESSIONS must be at least 1")
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("TRAINAGENT_FETCH_RETRIES must not be negative")
	}
	if c.FetchAttemptTimeout <= 0 || c.QueryTimeout <= 0 {
		return fmt.Errorf("fetch and query timeouts must be positive")
	}
	if _, err := models.ParseTimeOfDay(c.DefaultAfterTime); err != nil {
		return fmt.Errorf("TRAINAGENT_DEFAULT_AFTER_TIME: %w", err)
	}
	if c.DefaultLimit < models.MinLimit || c.DefaultLimit > models.MaxLimit {
		return fmt.Errorf("TRAINAGENT_DEFAULT_LIMIT must be between %d and %d", models.MinLimit, models.MaxLimit)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRAINAGENT_TRACING_SAMPLE_RATE must be between 0 and 1")
	}
	if strings.EqualFold(c.Environment, "production") && c.JWTSigningKey == "" {
		return fmt.Errorf("TRAINAGENT_JWT_SIGNING_KEY must be provided in production")
	}
	return nil
}

// QueryDefaults returns the validated defaults for omitted query fields.
func (c *Config) QueryDefaults() models.QueryDefaults {
	return models.QueryDefaults{
		After: models.MustParseTimeOfDay(c.DefaultAfterTime),
		Limit: c.DefaultLimit,
	}
}

// QueryLogEnabled reports whether query outcomes are persisted.
func (c *Config) QueryLogEnabled() bool {
	return c.DBDSN != ""
}

// HTTPAddr is the API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT": "use TRAINAGENT_ENV",
		"PORT":        "use TRAINAGENT_HTTP_PORT",
		"CHROME_BIN":  "use TRAINAGENT_BROWSER_BIN",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

func getEnvMillisAny(keys []string, def time.Duration) time.Duration {
	ms := getEnvIntAny(keys, int(def/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

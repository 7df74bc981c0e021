/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 8000 || cfg.BrowserMaxSessions != 2 || cfg.FetchRetries != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.FetchAttemptTimeout != 8*time.Second || cfg.FetchBackoff != 500*time.Millisecond || cfg.QueryTimeout != 30*time.Second {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
	if cfg.QueryLogEnabled() {
		t.Fatal("query log should be disabled without a DSN")
	}
	d := cfg.QueryDefaults()
	if d.After.String() != "15:00" || d.Limit != 3 {
		t.Fatalf("query defaults = %+v", d)
	}
}

func TestLoadReadsEnvKeys(t *testing.T) {
	t.Setenv("TRAINAGENT_HTTP_PORT", "9090")
	t.Setenv("TRAINAGENT_BROWSER_MAX_SESSIONS", "4")
	t.Setenv("TRAINAGENT_FETCH_ATTEMPT_TIMEOUT_MS", "2500")
	t.Setenv("TRAINAGENT_EVENTBUS", "NATS")
	t.Setenv("TRAINAGENT_DB_DSN", "file:queries.db")
	t.Setenv("TRAINAGENT_DEFAULT_AFTER_TIME", "8:30")
	t.Setenv("TRAINAGENT_BROWSER_HEADLESS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr() != "0.0.0.0:9090" {
		t.Errorf("addr = %s", cfg.HTTPAddr())
	}
	if cfg.BrowserMaxSessions != 4 || cfg.FetchAttemptTimeout != 2500*time.Millisecond {
		t.Errorf("browser settings = %d / %s", cfg.BrowserMaxSessions, cfg.FetchAttemptTimeout)
	}
	if cfg.EventBus != EventBusNATS || !cfg.QueryLogEnabled() || cfg.BrowserHeadless {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.QueryDefaults().After.String() != "08:30" {
		t.Errorf("after = %s", cfg.QueryDefaults().After)
	}
}

func TestLoadLegacyPort(t *testing.T) {
	t.Setenv("PORT", "8123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 8123 {
		t.Fatalf("port = %d", cfg.HTTPPort)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"TRAINAGENT_DB_BACKEND":           "oracle",
		"TRAINAGENT_EVENTBUS":             "kafka",
		"TRAINAGENT_DEFAULT_AFTER_TIME":   "25:00",
		"TRAINAGENT_DEFAULT_LIMIT":        "11",
		"TRAINAGENT_BROWSER_MAX_SESSIONS": "0",
		"TRAINAGENT_FETCH_RETRIES":        "-1",
		"TRAINAGENT_TRACING_SAMPLE_RATE":  "1.5",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", key, value)
			}
		})
	}
}

func TestLoadProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("TRAINAGENT_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected production config without signing key to fail")
	}

	t.Setenv("TRAINAGENT_JWT_SIGNING_KEY", "supersecret")
	if _, err := Load(); err != nil {
		t.Fatalf("load config: %v", err)
	}
}

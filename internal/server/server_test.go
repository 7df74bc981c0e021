/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/auth"
	"github.com/andref2015/train-agent/internal/browser/browsertest"
	"github.com/andref2015/train-agent/internal/config"
	"github.com/andref2015/train-agent/internal/events"
	"github.com/andref2015/train-agent/internal/logbuffer"
)

const page = `<html><body><app-main>
<div class="trip"><span>12:10</span><span>14:20</span></div>
<div class="trip"><span>15:32</span><span>17:40</span></div>
<div class="trip"><span>16:52</span><span>19:01</span></div>
</app-main></body></html>`

func testConfig() *config.Config {
	return &config.Config{
		Environment:         "test",
		HTTPBind:            "127.0.0.1",
		HTTPPort:            8000,
		SourceBaseURL:       "https://elron.pilet.ee/en/otsing",
		BrowserMaxSessions:  1,
		FetchAttemptTimeout: 500 * time.Millisecond,
		FetchRetries:        1,
		FetchBackoff:        time.Millisecond,
		QueryTimeout:        5 * time.Second,
		DefaultAfterTime:    "15:00",
		DefaultLimit:        3,
		EventBus:            config.EventBusMemory,
		DBBackend:           config.DatabaseSQLite,
		JWTSigningKey:       "test-secret",
		LogBufferSize:       100,
	}
}

func serve(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServerServesQueries(t *testing.T) {
	fake := browsertest.Serve(page)
	srv, err := newServer(testConfig(), logbuffer.New(100), fake, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer srv.Close()

	if srv.MetricsServer() != nil {
		t.Fatal("metrics server should be disabled without a bind address")
	}
	if srv.HTTPServer().Addr != "127.0.0.1:8000" {
		t.Fatalf("addr = %s", srv.HTTPServer().Addr)
	}

	h := srv.Handler()
	rr := serve(t, h, http.MethodGet, "/trains?from_city=Tallinn&to_city=Tartu&date=2025-06-21", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("trains: %d %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Trains []struct {
			DurationDisplay string `json:"duration_display"`
		} `json:"trains"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Trains) != 2 || body.Trains[0].DurationDisplay != "15:32 → 17:40" {
		t.Fatalf("trains = %+v", body.Trains)
	}
	if fake.Open() != 0 {
		t.Fatalf("%d browser sessions left open", fake.Open())
	}

	if rr := serve(t, h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"browser_sessions":1`) {
		t.Fatalf("healthz: %d %s", rr.Code, rr.Body.String())
	}
	if rr := serve(t, h, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "trainagent_queries_total") {
		t.Fatalf("metrics: %d", rr.Code)
	}
}

func TestServerQueryLog(t *testing.T) {
	cfg := testConfig()
	cfg.DBDSN = ":memory:"
	srv, err := newServer(cfg, nil, browsertest.Serve(page), zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer srv.Close()

	bus := srv.bus.(*events.Bus)
	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers(events.EventQueryFailed) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("query log never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	h := srv.Handler()
	if rr := serve(t, h, http.MethodGet, "/trains?from_city=Riga&to_city=Tartu&date=2025-06-21", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("riga: %d", rr.Code)
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{UserID: "ops", Roles: []string{auth.RoleOperator}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for {
		rr := serve(t, h, http.MethodGet, "/api/v1/system/queries?error_kind=unsupported_city", token)
		if rr.Code != http.StatusOK {
			t.Fatalf("queries: %d %s", rr.Code, rr.Body.String())
		}
		if strings.Contains(rr.Body.String(), `"from":"Riga"`) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("failed query never recorded: %s", rr.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerRejectsUnknownEventBus(t *testing.T) {
	cfg := testConfig()
	cfg.EventBus = "kafka"
	if _, err := newServer(cfg, nil, browsertest.Serve(page), zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown event bus")
	}
}

func TestServerRejectsMissingCitiesFile(t *testing.T) {
	cfg := testConfig()
	cfg.CitiesFile = "/nonexistent/cities.yaml"
	if _, err := newServer(cfg, nil, browsertest.Serve(page), zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing cities file")
	}
}

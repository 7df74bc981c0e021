/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andref2015/train-agent/internal/audit"
	"github.com/andref2015/train-agent/internal/auth"
	"github.com/andref2015/train-agent/internal/browser"
	"github.com/andref2015/train-agent/internal/browser/browsertest"
	"github.com/andref2015/train-agent/internal/cities"
	"github.com/andref2015/train-agent/internal/events"
	"github.com/andref2015/train-agent/internal/fetcher"
	"github.com/andref2015/train-agent/internal/logbuffer"
	"github.com/andref2015/train-agent/internal/models"
	"github.com/andref2015/train-agent/internal/trains"
)

var testSecret = []byte("test-secret")

func schedulePage(services ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><app-main>`)
	for _, s := range services {
		dep, arr, _ := strings.Cut(s, "-")
		fmt.Fprintf(&b, `<div class="trip-row"><span>%s</span><span>%s</span></div>`, dep, arr)
	}
	b.WriteString(`</app-main></body></html>`)
	return b.String()
}

func newTrainsService(t *testing.T, launcher browser.Launcher) *trains.Service {
	t.Helper()
	fcfg := fetcher.DefaultConfig()
	fcfg.AttemptTimeout = 100 * time.Millisecond
	fcfg.Backoff = time.Millisecond
	f := fetcher.New(browser.NewPool(launcher, 2, zerolog.Nop()), fcfg, nil, zerolog.Nop())
	return trains.NewService(cities.Default(), f, nil, trains.Config{Location: time.UTC}, zerolog.Nop())
}

func newRouter(a *API) http.Handler {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := auth.Issue(testSecret, auth.Claims{UserID: "ops", Roles: []string{auth.RoleOperator}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestTrainsSuccess(t *testing.T) {
	page := schedulePage("12:10-14:20", "15:32-17:40", "16:52-19:01", "18:11-20:19", "19:40-21:49", "21:05-23:14")
	h := newRouter(New(newTrainsService(t, browsertest.Serve(page)), nil, nil, testSecret, zerolog.Nop()))

	for _, path := range []string{"/trains", "/api/v1/trains"} {
		rr := get(t, h, path+"?from_city=tallinn&to_city=TARTU&date=2025-06-21&after_time=15:00&limit=3", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status %d body=%s", path, rr.Code, rr.Body.String())
		}

		var body trainsResponse
		decode(t, rr, &body)
		if !body.Success || body.QueryID == "" {
			t.Fatalf("unexpected envelope %+v", body)
		}
		if body.Route != (routeResponse{From: "Tallinn", To: "Tartu", Date: "2025-06-21", DateDisplay: "June 21, 2025"}) {
			t.Fatalf("route = %+v", body.Route)
		}
		if body.Filters != (filtersResponse{AfterTime: "15:00", Limit: 3}) {
			t.Fatalf("filters = %+v", body.Filters)
		}
		if len(body.Trains) != 3 {
			t.Fatalf("trains = %+v", body.Trains)
		}
		want := []string{"15:32 → 17:40", "16:52 → 19:01", "18:11 → 20:19"}
		for i, tr := range body.Trains {
			if tr.DurationDisplay != want[i] {
				t.Fatalf("train %d = %+v, want %s", i, tr, want[i])
			}
		}
		if body.Summary.TotalFound != 3 || body.Summary.Message != "Found 3 trains from Tallinn to Tartu after 15:00" {
			t.Fatalf("summary = %+v", body.Summary)
		}
	}
}

func TestTrainsDefaultsAndEmpty(t *testing.T) {
	h := newRouter(New(newTrainsService(t, browsertest.Serve(schedulePage("09:00-11:00"))), nil, nil, nil, zerolog.Nop()))

	rr := get(t, h, "/trains?from_city=Tartu&to_city=Tallinn&date=2025-06-21", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"trains":[]`) {
		t.Fatalf("expected empty trains array, got %s", rr.Body.String())
	}

	var body trainsResponse
	decode(t, rr, &body)
	if body.Filters.AfterTime != models.DefaultAfterTime || body.Filters.Limit != models.DefaultLimit {
		t.Fatalf("defaults not applied: %+v", body.Filters)
	}
	if body.Summary.TotalFound != 0 {
		t.Fatalf("summary = %+v", body.Summary)
	}
}

func TestTrainsValidationErrors(t *testing.T) {
	fake := browsertest.Serve(schedulePage("15:32-17:40"))
	h := newRouter(New(newTrainsService(t, fake), nil, nil, nil, zerolog.Nop()))

	tests := []struct {
		name   string
		query  string
		detail string
	}{
		{"missing from", "to_city=Tartu&date=2025-06-21", "Missing required query parameter: from_city"},
		{"unknown city", "from_city=Riga&to_city=Tartu&date=2025-06-21",
			"Unknown departure city 'Riga'. Available cities: Tallinn, Tartu, Narva, Pärnu, Viljandi"},
		{"unknown destination", "from_city=Tartu&to_city=Helsinki&date=2025-06-21",
			"Unknown destination city 'Helsinki'. Available cities: Tallinn, Tartu, Narva, Pärnu, Viljandi"},
		{"same city", "from_city=tallinn&to_city=Tallinn&date=2025-06-21", trains.SameCityDetail},
		{"bad date", "from_city=Tallinn&to_city=Tartu&date=21.06.2025", "Invalid date format. Use YYYY-MM-DD or 'tomorrow'"},
		{"bad time", "from_city=Tallinn&to_city=Tartu&date=2025-06-21&after_time=25:00", trains.InvalidTimeDetail},
		{"limit not int", "from_city=Tallinn&to_city=Tartu&date=2025-06-21&limit=three", trains.LimitDetail},
		{"limit zero", "from_city=Tallinn&to_city=Tartu&date=2025-06-21&limit=0", trains.LimitDetail},
		{"limit too big", "from_city=Tallinn&to_city=Tartu&date=2025-06-21&limit=11", trains.LimitDetail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, h, "/api/v1/trains?"+tt.query, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
			}
			var body map[string]string
			decode(t, rr, &body)
			if body["detail"] != tt.detail {
				t.Fatalf("detail = %q, want %q", body["detail"], tt.detail)
			}
		})
	}

	if fake.Launches() != 0 {
		t.Fatalf("validation failures launched %d browsers", fake.Launches())
	}
}

func TestTrainsUpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		launcher *browsertest.Launcher
		status   int
	}{
		{"timeout", browsertest.New(browsertest.Step{Delay: time.Second}), http.StatusGatewayTimeout},
		{"unavailable", browsertest.New(browsertest.Step{Err: errors.New("net::ERR_CONNECTION_REFUSED")}), http.StatusServiceUnavailable},
		{"launch failure", browsertest.New(browsertest.Step{FailLaunch: true}), http.StatusServiceUnavailable},
		{"parse failure", browsertest.Serve("<html><body>maintenance</body></html>"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(New(newTrainsService(t, tt.launcher), nil, nil, nil, zerolog.Nop()))
			rr := get(t, h, "/trains?from_city=Tallinn&to_city=Tartu&date=2025-06-21", "")
			if rr.Code != tt.status {
				t.Fatalf("status %d, want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			var body map[string]string
			decode(t, rr, &body)
			if body["detail"] == "" {
				t.Fatal("missing detail")
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("untyped error -> %d", got)
	}
	if got := statusFor(models.NewError(models.ErrInvalidDate, "x", nil)); got != http.StatusBadRequest {
		t.Fatalf("invalid date -> %d", got)
	}
}

func TestRootHealthCities(t *testing.T) {
	h := newRouter(New(newTrainsService(t, browsertest.Serve("")), nil, nil, nil, zerolog.Nop()))

	var root map[string]any
	decode(t, get(t, h, "/", ""), &root)
	supported, _ := root["supported_cities"].([]any)
	if len(supported) != 5 || supported[0] != "Tallinn" {
		t.Fatalf("supported_cities = %v", root["supported_cities"])
	}

	var health map[string]string
	decode(t, get(t, h, "/api/v1/health", ""), &health)
	if health["status"] != "ok" || health["version"] == "" {
		t.Fatalf("health = %v", health)
	}

	var list struct {
		Cities []models.City `json:"cities"`
	}
	decode(t, get(t, h, "/api/v1/cities", ""), &list)
	if len(list.Cities) != 5 || len(list.Cities[3].Aliases) == 0 {
		t.Fatalf("cities = %+v", list.Cities)
	}
}

func TestSystemEndpointsRequireOperator(t *testing.T) {
	buf := logbuffer.New(10)
	h := newRouter(New(newTrainsService(t, browsertest.Serve("")), nil, buf, testSecret, zerolog.Nop()))

	if rr := get(t, h, "/api/v1/system/logs", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rr.Code)
	}

	viewer, err := auth.Issue(testSecret, auth.Claims{UserID: "v", Roles: []string{"viewer"}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rr := get(t, h, "/api/v1/system/logs", viewer); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer: %d", rr.Code)
	}

	if rr := get(t, h, "/api/v1/system/logs", operatorToken(t)); rr.Code != http.StatusOK {
		t.Fatalf("operator: %d", rr.Code)
	}
}

func TestSystemLogs(t *testing.T) {
	buf := logbuffer.New(10)
	now := time.Now()
	buf.Add(logbuffer.LogEntry{Timestamp: now, Level: "info", Message: "query completed", Component: "trains"})
	buf.Add(logbuffer.LogEntry{Timestamp: now, Level: "warn", Message: "attempt failed", Component: "fetcher"})
	h := newRouter(New(newTrainsService(t, browsertest.Serve("")), nil, buf, testSecret, zerolog.Nop()))
	token := operatorToken(t)

	var body struct {
		Entries []logbuffer.LogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	decode(t, get(t, h, "/api/v1/system/logs?component=fetcher", token), &body)
	if body.Count != 1 || body.Entries[0].Message != "attempt failed" {
		t.Fatalf("logs = %+v", body)
	}

	var stats logbuffer.Stats
	decode(t, get(t, h, "/api/v1/system/logs/stats", token), &stats)
	if stats.Count != 2 || len(stats.Components) != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/system/logs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || len(buf.GetAll()) != 0 {
		t.Fatalf("clear: %d, %d entries left", rr.Code, len(buf.GetAll()))
	}
}

func TestQueryLogEndpoint(t *testing.T) {
	token := operatorToken(t)

	disabled := newRouter(New(newTrainsService(t, browsertest.Serve("")), nil, nil, testSecret, zerolog.Nop()))
	if rr := get(t, disabled, "/api/v1/system/queries", token); rr.Code != http.StatusNotFound {
		t.Fatalf("disabled query log: %d", rr.Code)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	auditSvc := audit.NewService(db, events.NewBus(), zerolog.Nop())
	ctx := context.Background()
	for _, entry := range []*models.AuditLog{
		{Action: models.AuditActionQueryCompleted, Origin: "Tallinn", Destination: "Tartu", TotalFound: 3},
		{Action: models.AuditActionQueryFailed, Origin: "Tallinn", Destination: "Narva", ErrorKind: "upstream_timeout"},
	} {
		if err := auditSvc.Log(ctx, entry); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	h := newRouter(New(newTrainsService(t, browsertest.Serve("")), auditSvc, nil, testSecret, zerolog.Nop()))

	var body struct {
		Queries []queryLogResponse `json:"queries"`
		Total   int64              `json:"total"`
	}
	decode(t, get(t, h, "/api/v1/system/queries?action=query.failed", token), &body)
	if body.Total != 1 || body.Queries[0].To != "Narva" || body.Queries[0].ErrorKind != "upstream_timeout" {
		t.Fatalf("queries = %+v", body)
	}

	decode(t, get(t, h, "/api/v1/system/queries?from=Tallinn&limit=1", token), &body)
	if body.Total != 2 || len(body.Queries) != 1 {
		t.Fatalf("paged queries = %+v", body)
	}
}

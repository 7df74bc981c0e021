/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/audit"
	"github.com/andref2015/train-agent/internal/auth"
	"github.com/andref2015/train-agent/internal/logbuffer"
	"github.com/andref2015/train-agent/internal/trains"
	"github.com/andref2015/train-agent/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	trains    *trains.Service
	auditSvc  *audit.Service
	logBuffer *logbuffer.Buffer
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper. auditSvc and logBuf may be nil when
// the query log or the log buffer is disabled.
func New(trainsSvc *trains.Service, auditSvc *audit.Service, logBuf *logbuffer.Buffer, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		trains:    trainsSvc,
		auditSvc:  auditSvc,
		logBuffer: logBuf,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers all HTTP routes on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/", a.handleRoot)
	r.Get("/trains", a.handleTrains)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/cities", a.handleCities)
		r.Get("/trains", a.handleTrains)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))
			pr.Use(auth.RequireRole(auth.RoleOperator))

			pr.Route("/system", func(r chi.Router) {
				r.Get("/logs", a.handleSystemLogs)
				r.Get("/logs/stats", a.handleLogStats)
				r.Delete("/logs", a.handleClearLogs)
				r.Get("/queries", a.handleQueryLog)
			})
		})
	})
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Estonian Train Times API",
		"version": version.Version,
		"endpoints": map[string]string{
			"/trains":         "Get train departure times",
			"/api/v1/trains":  "Get train departure times",
			"/api/v1/cities":  "List supported cities and aliases",
			"/api/v1/health":  "Service health",
			"/api/v1/system/": "Operator endpoints (bearer token)",
		},
		"supported_cities": cityNames(a.trains),
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (a *API) handleCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cities": a.trains.Cities(),
	})
}

func cityNames(svc *trains.Service) []string {
	cities := svc.Cities()
	names := make([]string, len(cities))
	for i, c := range cities {
		names[i] = c.Name
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

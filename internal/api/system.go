/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/andref2015/train-agent/internal/auth"
	"github.com/andref2015/train-agent/internal/logbuffer"
)

func (a *API) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "Log buffer not available")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		QueryID:    r.URL.Query().Get("query_id"),
		Search:     r.URL.Query().Get("search"),
		Descending: true,
		Limit:      500,
	}

	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if r.URL.Query().Get("order") == "asc" {
		params.Descending = false
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "Log buffer not available")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func (a *API) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "Log buffer not available")
		return
	}

	a.logBuffer.Clear()
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		a.logger.Info().Str("user_id", claims.UserID).Msg("log buffer cleared")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Log buffer cleared",
	})
}

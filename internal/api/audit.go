/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/andref2015/train-agent/internal/audit"
	"github.com/andref2015/train-agent/internal/models"
)

// queryLogResponse is the JSON response for one query log entry.
type queryLogResponse struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	NodeID     string         `json:"node_id,omitempty"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Date       string         `json:"date,omitempty"`
	AfterTime  string         `json:"after_time,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	TotalFound int            `json:"total_found"`
	Attempts   int            `json:"attempts,omitempty"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// handleQueryLog returns a paginated list of recorded query outcomes.
func (a *API) handleQueryLog(w http.ResponseWriter, r *http.Request) {
	if a.auditSvc == nil {
		writeError(w, http.StatusNotFound, "Query log is disabled")
		return
	}

	filters := parseQueryLogFilters(r)
	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query query log")
		writeError(w, http.StatusInternalServerError, "Query log lookup failed")
		return
	}

	response := make([]queryLogResponse, len(logs))
	for i, log := range logs {
		response[i] = toQueryLogResponse(log)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queries": response,
		"total":   total,
		"limit":   filters.Limit,
		"offset":  filters.Offset,
	})
}

// parseQueryLogFilters extracts query filters from the request.
func parseQueryLogFilters(r *http.Request) audit.QueryFilters {
	filters := audit.QueryFilters{
		Limit:       100,
		Origin:      r.URL.Query().Get("from"),
		Destination: r.URL.Query().Get("to"),
		ErrorKind:   r.URL.Query().Get("error_kind"),
	}

	if action := r.URL.Query().Get("action"); action != "" {
		a := models.AuditAction(action)
		filters.Action = &a
	}

	if startTime := r.URL.Query().Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filters.StartTime = &t
		}
	}

	if endTime := r.URL.Query().Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filters.EndTime = &t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 500 {
			filters.Limit = n
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	return filters
}

func toQueryLogResponse(log models.AuditLog) queryLogResponse {
	return queryLogResponse{
		ID:         log.ID,
		Timestamp:  log.Timestamp,
		Action:     string(log.Action),
		NodeID:     log.NodeID,
		From:       log.Origin,
		To:         log.Destination,
		Date:       log.TravelDate,
		AfterTime:  log.AfterTime,
		Limit:      log.Limit,
		TotalFound: log.TotalFound,
		Attempts:   log.Attempts,
		ElapsedMS:  log.ElapsedMS,
		ErrorKind:  log.ErrorKind,
		Detail:     log.Detail,
		Details:    log.Details,
	}
}

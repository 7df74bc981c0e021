/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/andref2015/train-agent/internal/models"
	"github.com/andref2015/train-agent/internal/trains"
)

type routeResponse struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Date        string `json:"date"`
	DateDisplay string `json:"date_display"`
}

type filtersResponse struct {
	AfterTime string `json:"after_time"`
	Limit     int    `json:"limit"`
}

type trainResponse struct {
	DepartureTime   string `json:"departure_time"`
	ArrivalTime     string `json:"arrival_time"`
	DurationDisplay string `json:"duration_display"`
	Overnight       bool   `json:"overnight,omitempty"`
}

type summaryResponse struct {
	TotalFound int    `json:"total_found"`
	Message    string `json:"message"`
}

type trainsResponse struct {
	Success              bool            `json:"success"`
	QueryID              string          `json:"query_id"`
	Route                routeResponse   `json:"route"`
	Filters              filtersResponse `json:"filters"`
	Trains               []trainResponse `json:"trains"`
	Summary              summaryResponse `json:"summary"`
	ExecutionTimeSeconds float64         `json:"execution_time_seconds"`
}

func (a *API) handleTrains(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	for _, name := range []string{"from_city", "to_city", "date"} {
		if params.Get(name) == "" {
			writeError(w, http.StatusBadRequest, "Missing required query parameter: "+name)
			return
		}
	}

	q := models.Query{
		Origin:      params.Get("from_city"),
		Destination: params.Get("to_city"),
		Date:        params.Get("date"),
		AfterTime:   params.Get("after_time"),
	}
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < models.MinLimit || n > models.MaxLimit {
			writeError(w, http.StatusBadRequest, trains.LimitDetail)
			return
		}
		q.Limit = n
	}

	result, err := a.trains.Run(r.Context(), q)
	if err != nil {
		status := statusFor(err)
		detail := models.Detail(err)
		if status == http.StatusInternalServerError {
			a.logger.Error().Err(err).Msg("train query failed")
			detail = "Internal server error"
		}
		writeError(w, status, detail)
		return
	}

	writeJSON(w, http.StatusOK, toTrainsResponse(result))
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(err error) int {
	switch models.KindOf(err) {
	case models.ErrUnsupportedCity, models.ErrInvalidDate, models.ErrInvalidQuery:
		return http.StatusBadRequest
	case models.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case models.ErrUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case models.ErrParseFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toTrainsResponse(result *models.Result) trainsResponse {
	q := result.Query
	list := make([]trainResponse, len(result.Entries))
	for i, e := range result.Entries {
		list[i] = trainResponse{
			DepartureTime:   e.Departure.String(),
			ArrivalTime:     e.Arrival.String(),
			DurationDisplay: e.Display(),
			Overnight:       e.Overnight,
		}
	}

	return trainsResponse{
		Success: true,
		QueryID: result.ID.String(),
		Route: routeResponse{
			From:        q.Origin.Name,
			To:          q.Destination.Name,
			Date:        q.Date.String(),
			DateDisplay: q.Date.Display(),
		},
		Filters: filtersResponse{
			AfterTime: q.After.String(),
			Limit:     q.Limit,
		},
		Trains: list,
		Summary: summaryResponse{
			TotalFound: result.TotalFound,
			Message: fmt.Sprintf("Found %d trains from %s to %s after %s",
				result.TotalFound, q.Origin.Name, q.Destination.Name, q.After),
		},
		ExecutionTimeSeconds: result.ElapsedSeconds(),
	}
}

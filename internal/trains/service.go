/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package trains answers schedule queries end to end.
package trains

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/cities"
	"github.com/andref2015/train-agent/internal/dates"
	"github.com/andref2015/train-agent/internal/events"
	"github.com/andref2015/train-agent/internal/fetcher"
	"github.com/andref2015/train-agent/internal/filter"
	"github.com/andref2015/train-agent/internal/models"
	"github.com/andref2015/train-agent/internal/parser"
	"github.com/andref2015/train-agent/internal/telemetry"
)

// DefaultQueryTimeout bounds a whole query, retries included.
const DefaultQueryTimeout = 30 * time.Second

// Caller-facing validation messages.
const (
	InvalidTimeDetail = "Invalid time format. Use HH:MM (e.g., 15:00)"
	SameCityDetail    = "Departure and destination cities cannot be the same"
)

// LimitDetail is returned for a limit outside [models.MinLimit, models.MaxLimit].
var LimitDetail = fmt.Sprintf("Limit must be between %d and %d", models.MinLimit, models.MaxLimit)

// Fetcher retrieves a rendered page, checking it with accept.
type Fetcher interface {
	FetchWith(ctx context.Context, origin, destination models.City, date models.TravelDate, accept fetcher.AcceptFunc) (models.RawContent, error)
}

// Config holds query defaults and limits.
type Config struct {
	Defaults models.QueryDefaults
	Timeout  time.Duration
	// Location is used to resolve "today" and "tomorrow".
	Location *time.Location
	// NodeID tags published events with the producing instance.
	NodeID string
}

// Service validates queries and runs fetch, parse and filter.
type Service struct {
	cities  *cities.Resolver
	fetcher Fetcher
	bus     events.Publisher
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates the query service. A nil bus discards events.
func NewService(resolver *cities.Resolver, f Fetcher, bus events.Publisher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Defaults.Limit == 0 {
		cfg.Defaults = models.DefaultQueryDefaults()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQueryTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Service{
		cities:  resolver,
		fetcher: f,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With().Str("component", "trains").Logger(),
		now:     time.Now,
	}
}

// Cities returns the supported cities.
func (s *Service) Cities() []models.City {
	return s.cities.Cities()
}

// Defaults returns the values applied to omitted query fields.
func (s *Service) Defaults() models.QueryDefaults {
	return s.cfg.Defaults
}

// Run answers q. Validation failures return before any browser work.
func (s *Service) Run(ctx context.Context, q models.Query) (*models.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "trains", "query")
	defer span.End()

	resolved, err := s.Resolve(q)
	if err != nil {
		telemetry.RecordError(span, err)
		s.fail(q, nil, 0, err)
		return nil, err
	}
	telemetry.AddSpanAttributes(span, map[string]any{
		"query.from":  resolved.Origin.Name,
		"query.to":    resolved.Destination.Name,
		"query.date":  resolved.Date.String(),
		"query.after": resolved.After.String(),
		"query.limit": resolved.Limit,
	})

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var entries []models.ScheduleEntry
	content, err := s.fetcher.FetchWith(ctx, resolved.Origin, resolved.Destination, resolved.Date,
		func(c models.RawContent) error {
			parsed, err := parser.Parse(c)
			if err != nil {
				return err
			}
			entries = parsed
			return nil
		})
	elapsed := time.Since(start)
	telemetry.QueryDuration.Observe(elapsed.Seconds())

	if err != nil {
		telemetry.RecordError(span, err)
		s.fail(q, &resolved, elapsed, err)
		return nil, fmt.Errorf("fetch schedule %s -> %s: %w", resolved.Origin, resolved.Destination, err)
	}

	listed := filter.Apply(entries, resolved.After, resolved.Limit)
	result := &models.Result{
		ID:         uuid.New(),
		Query:      resolved,
		Entries:    listed,
		TotalFound: len(listed),
		Elapsed:    elapsed,
		Attempts:   content.Attempts,
	}

	s.complete(result, len(entries), filter.CountAfter(entries, resolved.After))
	return result, nil
}

// Resolve validates q into an immutable query without doing any I/O.
func (s *Service) Resolve(q models.Query) (models.ResolvedQuery, error) {
	origin, err := s.cities.Resolve(q.Origin)
	if err != nil {
		return models.ResolvedQuery{}, withRole(err, "departure", q.Origin)
	}
	destination, err := s.cities.Resolve(q.Destination)
	if err != nil {
		return models.ResolvedQuery{}, withRole(err, "destination", q.Destination)
	}
	if origin.Name == destination.Name {
		return models.ResolvedQuery{}, models.NewError(models.ErrInvalidQuery, SameCityDetail, nil)
	}

	date, err := dates.Resolve(q.Date, s.now().In(s.cfg.Location))
	if err != nil {
		return models.ResolvedQuery{}, err
	}

	after := s.cfg.Defaults.After
	if q.AfterTime != "" {
		after, err = models.ParseTimeOfDay(q.AfterTime)
		if err != nil {
			return models.ResolvedQuery{}, models.NewError(models.ErrInvalidQuery, InvalidTimeDetail, err)
		}
	}

	limit := q.Limit
	if limit == 0 {
		limit = s.cfg.Defaults.Limit
	}
	if limit < models.MinLimit || limit > models.MaxLimit {
		return models.ResolvedQuery{}, models.NewError(models.ErrInvalidQuery, LimitDetail, nil)
	}

	return models.ResolvedQuery{
		Origin:      origin,
		Destination: destination,
		Date:        date,
		After:       after,
		Limit:       limit,
	}, nil
}

// withRole names which end of the route was not recognized.
func withRole(err error, role, input string) error {
	var qe *models.QueryError
	if !errors.As(err, &qe) {
		return err
	}
	out := *qe
	out.Detail = fmt.Sprintf("Unknown %s city '%s'. Available cities: %s",
		role, strings.TrimSpace(input), strings.Join(qe.Supported, ", "))
	return &out
}

func (s *Service) complete(r *models.Result, parsed, available int) {
	telemetry.QueriesTotal.WithLabelValues("ok").Inc()

	s.logger.Info().
		Str("query_id", r.ID.String()).
		Str("from", r.Query.Origin.Name).
		Str("to", r.Query.Destination.Name).
		Str("date", r.Query.Date.String()).
		Str("after", r.Query.After.String()).
		Int("parsed", parsed).
		Int("available", available).
		Int("found", r.TotalFound).
		Int("attempts", r.Attempts).
		Dur("elapsed", r.Elapsed).
		Msg("schedule query completed")

	s.bus.Publish(events.EventQueryCompleted, events.Payload{
		"query_id":    r.ID.String(),
		"node_id":     s.cfg.NodeID,
		"origin":      r.Query.Origin.Name,
		"destination": r.Query.Destination.Name,
		"date":        r.Query.Date.String(),
		"after_time":  r.Query.After.String(),
		"limit":       r.Query.Limit,
		"total_found": r.TotalFound,
		"attempts":    r.Attempts,
		"elapsed_ms":  r.Elapsed.Milliseconds(),
	})
}

func (s *Service) fail(q models.Query, resolved *models.ResolvedQuery, elapsed time.Duration, err error) {
	kind := models.KindName(err)
	telemetry.QueriesTotal.WithLabelValues(kind).Inc()

	payload := events.Payload{
		"query_id":    uuid.NewString(),
		"node_id":     s.cfg.NodeID,
		"origin":      q.Origin,
		"destination": q.Destination,
		"date":        q.Date,
		"after_time":  q.AfterTime,
		"limit":       q.Limit,
		"error_kind":  kind,
		"detail":      models.Detail(err),
		"elapsed_ms":  elapsed.Milliseconds(),
	}
	if resolved != nil {
		payload["origin"] = resolved.Origin.Name
		payload["destination"] = resolved.Destination.Name
		payload["date"] = resolved.Date.String()
		payload["after_time"] = resolved.After.String()
		payload["limit"] = resolved.Limit
	}

	event := s.logger.Warn()
	if resolved == nil {
		event = s.logger.Debug()
	}
	event.Err(err).
		Str("from", q.Origin).
		Str("to", q.Destination).
		Str("error_kind", kind).
		Dur("elapsed", elapsed).
		Msg("schedule query failed")

	s.bus.Publish(events.EventQueryFailed, payload)
}

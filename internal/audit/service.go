/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists query outcomes reported on the event bus.
package audit

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andref2015/train-agent/internal/events"
	"github.com/andref2015/train-agent/internal/models"
)

// Subscriber is the read side of the event bus.
type Subscriber interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// Service records query.completed and query.failed events. Only the route,
// the outcome and counters are stored; schedule contents never are.
type Service struct {
	db     *gorm.DB
	bus    Subscriber
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus Subscriber, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start consumes query events until ctx ends.
func (s *Service) Start(ctx context.Context) {
	completed := s.bus.Subscribe(events.EventQueryCompleted)
	failed := s.bus.Subscribe(events.EventQueryFailed)
	defer func() {
		s.bus.Unsubscribe(events.EventQueryCompleted, completed)
		s.bus.Unsubscribe(events.EventQueryFailed, failed)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload, ok := <-completed:
			if !ok {
				return
			}
			s.logAuditEntry(ctx, models.AuditActionQueryCompleted, payload)

		case payload, ok := <-failed:
			if !ok {
				return
			}
			s.logAuditEntry(ctx, models.AuditActionQueryFailed, payload)
		}
	}
}

// logAuditEntry maps an event payload onto a row. Numbers may arrive as
// float64 when the event crossed a distributed bus.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:      action,
		Origin:      str(payload["origin"]),
		Destination: str(payload["destination"]),
		TravelDate:  str(payload["date"]),
		AfterTime:   str(payload["after_time"]),
		Limit:       num(payload["limit"]),
		TotalFound:  num(payload["total_found"]),
		Attempts:    num(payload["attempts"]),
		ElapsedMS:   int64(num(payload["elapsed_ms"])),
		ErrorKind:   str(payload["error_kind"]),
		Detail:      truncate(str(payload["detail"]), 512),
		NodeID:      str(payload["node_id"]),
		Details:     make(map[string]any),
	}
	if id := str(payload["query_id"]); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			entry.ID = id
		}
	}

	for k, v := range payload {
		switch k {
		case "query_id", "origin", "destination", "date", "after_time", "limit",
			"total_found", "attempts", "elapsed_ms", "error_kind", "detail", "node_id":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly. Entries are keyed by query ID, so an
// event delivered to several nodes sharing one database is stored once.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := time.Now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error; err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")
	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	Action      *models.AuditAction
	Origin      string
	Destination string
	ErrorKind   string
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}

// Query retrieves audit logs, newest first, with the total matching count.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.Origin != "" {
		query = query.Where("origin = ?", filters.Origin)
	}
	if filters.Destination != "" {
		query = query.Where("destination = ?", filters.Destination)
	}
	if filters.ErrorKind != "" {
		query = query.Where("error_kind = ?", filters.ErrorKind)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	return logs, total, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

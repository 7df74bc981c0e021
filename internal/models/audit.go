/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited query outcome.
type AuditAction string

const (
	AuditActionQueryCompleted AuditAction = "query.completed"
	AuditActionQueryFailed    AuditAction = "query.failed"
)

// AuditLog records one query outcome. It stores the route and the outcome
// counts only; schedule entries are never persisted.
type AuditLog struct {
	ID          string         `gorm:"type:varchar(36);primaryKey"`
	Timestamp   time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	Action      AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	NodeID      string         `gorm:"type:varchar(64)"`
	Origin      string         `gorm:"type:varchar(64);index:idx_audit_route"`
	Destination string         `gorm:"type:varchar(64);index:idx_audit_route"`
	TravelDate  string         `gorm:"type:varchar(10)"`
	AfterTime   string         `gorm:"type:varchar(5)"`
	Limit       int            `gorm:"column:result_limit"`
	TotalFound  int            `gorm:"not null;default:0"`
	Attempts    int            `gorm:"not null;default:0"`
	ElapsedMS   int64          `gorm:"not null;default:0"`
	ErrorKind   string         `gorm:"type:varchar(32);index:idx_audit_error_kind"`
	Detail      string         `gorm:"type:varchar(512)"`
	Details     map[string]any `gorm:"serializer:json"`
	CreatedAt   time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/config"
	"github.com/andref2015/train-agent/internal/models"
)

func TestConnectAndMigrateSQLite(t *testing.T) {
	database, err := Connect(config.DatabaseSQLite, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !database.Migrator().HasTable(&models.AuditLog{}) {
		t.Fatal("audit_logs table missing")
	}
	if !database.Migrator().HasColumn(&models.AuditLog{}, "result_limit") {
		t.Fatal("result_limit column missing")
	}

	UpdateConnectionMetrics(database)
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(config.DatabaseBackend("oracle"), "dsn", zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one successful query.
type Result struct {
	ID         uuid.UUID       `json:"id"`
	Query      ResolvedQuery   `json:"query"`
	Entries    []ScheduleEntry `json:"entries"`
	TotalFound int             `json:"total_found"`
	Elapsed    time.Duration   `json:"elapsed"`
	Attempts   int             `json:"attempts"`
}

// ElapsedSeconds rounds the retrieval time to two decimals.
func (r *Result) ElapsedSeconds() float64 {
	return float64(r.Elapsed.Round(10*time.Millisecond).Milliseconds()) / 1000
}

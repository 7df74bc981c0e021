/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

// Query limits and defaults.
const (
	DefaultAfterTime = "15:00"
	DefaultLimit     = 3
	MinLimit         = 1
	MaxLimit         = 10
)

// Query is the untrusted request as received from a caller.
// Empty AfterTime and zero Limit select the configured defaults.
type Query struct {
	Origin      string `json:"from_city"`
	Destination string `json:"to_city"`
	Date        string `json:"date"`
	AfterTime   string `json:"after_time,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// ResolvedQuery is a validated Query. It is never mutated after validation.
type ResolvedQuery struct {
	Origin      City       `json:"from"`
	Destination City       `json:"to"`
	Date        TravelDate `json:"date"`
	After       TimeOfDay  `json:"after_time"`
	Limit       int        `json:"limit"`
}

// QueryDefaults holds the values applied when a caller omits optional fields.
type QueryDefaults struct {
	After TimeOfDay
	Limit int
}

// DefaultQueryDefaults returns 15:00 and 3.
func DefaultQueryDefaults() QueryDefaults {
	return QueryDefaults{
		After: MustParseTimeOfDay(DefaultAfterTime),
		Limit: DefaultLimit,
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "fmt"

// ScheduleEntry is one train service scraped from the source.
// Overnight marks services whose arrival wall-clock time is earlier than
// departure, i.e. arrival falls on the following day.
type ScheduleEntry struct {
	Departure TimeOfDay `json:"departure"`
	Arrival   TimeOfDay `json:"arrival"`
	Overnight bool      `json:"overnight,omitempty"`
}

// NewScheduleEntry builds an entry and derives the overnight flag.
func NewScheduleEntry(departure, arrival TimeOfDay) ScheduleEntry {
	return ScheduleEntry{
		Departure: departure,
		Arrival:   arrival,
		Overnight: arrival.Before(departure),
	}
}

// Display renders "HH:MM → HH:MM".
func (e ScheduleEntry) Display() string {
	return fmt.Sprintf("%s → %s", e.Departure, e.Arrival)
}

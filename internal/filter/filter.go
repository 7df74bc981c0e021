/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package filter narrows parsed services to what a caller asked for.
package filter

import (
	"slices"

	"github.com/andref2015/train-agent/internal/models"
)

// Apply keeps services departing strictly after the given time, removes
// duplicates, orders them by departure then arrival and returns at most
// limit entries. The input slice is not modified.
func Apply(entries []models.ScheduleEntry, after models.TimeOfDay, limit int) []models.ScheduleEntry {
	out := make([]models.ScheduleEntry, 0, len(entries))
	seen := make(map[[2]int]struct{}, len(entries))

	for _, e := range entries {
		if !e.Departure.After(after) {
			continue
		}
		key := [2]int{e.Departure.Minutes(), e.Arrival.Minutes()}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}

	slices.SortStableFunc(out, compare)

	if limit < 0 {
		limit = 0
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CountAfter reports how many distinct services depart after the given time,
// before any limit is applied.
func CountAfter(entries []models.ScheduleEntry, after models.TimeOfDay) int {
	return len(Apply(entries, after, len(entries)))
}

func compare(a, b models.ScheduleEntry) int {
	if d := a.Departure.Minutes() - b.Departure.Minutes(); d != 0 {
		return d
	}
	return a.Arrival.Minutes() - b.Arrival.Minutes()
}

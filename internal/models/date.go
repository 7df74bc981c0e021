/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"time"
)

// DateLayout is the absolute date format accepted from callers and sent to the source.
const DateLayout = "2006-01-02"

// TravelDate is an absolute calendar date.
type TravelDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) TravelDate {
	y, m, d := t.Date()
	return TravelDate{Year: y, Month: m, Day: d}
}

// Time returns midnight of the date in loc.
func (d TravelDate) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays moves the date by n calendar days.
func (d TravelDate) AddDays(n int) TravelDate {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

func (d TravelDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d TravelDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Display renders the long form used in responses, e.g. "June 21, 2025".
func (d TravelDate) Display() string {
	return d.Time(time.UTC).Format("January 02, 2006")
}

// Short renders the compact form used by the terminal output, e.g. "Jun 21".
func (d TravelDate) Short() string {
	return d.Time(time.UTC).Format("Jan 02")
}

func (d TravelDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dates normalizes caller-supplied travel dates.
package dates

import (
	"regexp"
	"strings"
	"time"

	"github.com/andref2015/train-agent/internal/models"
)

// Relative date tokens.
const (
	Today    = "today"
	Tomorrow = "tomorrow"
)

// InvalidDateDetail is the caller-facing message for unparseable dates.
const InvalidDateDetail = "Invalid date format. Use YYYY-MM-DD or 'tomorrow'"

var absolutePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Resolve turns "today", "tomorrow" or an absolute YYYY-MM-DD date into a
// calendar date. Relative tokens are computed in now's location.
func Resolve(input string, now time.Time) (models.TravelDate, error) {
	token := strings.ToLower(strings.TrimSpace(input))

	switch token {
	case Today:
		return models.DateOf(now), nil
	case Tomorrow:
		return models.DateOf(now).AddDays(1), nil
	}

	if !absolutePattern.MatchString(token) {
		return models.TravelDate{}, invalid(input, nil)
	}

	// time.Parse rejects out-of-range days such as 2025-02-30.
	t, err := time.Parse(models.DateLayout, token)
	if err != nil {
		return models.TravelDate{}, invalid(input, err)
	}
	return models.DateOf(t), nil
}

func invalid(input string, cause error) error {
	qe := models.NewError(models.ErrInvalidDate, InvalidDateDetail, cause)
	if cause == nil && input != "" {
		qe.Err = &inputError{input: input}
	}
	return qe
}

type inputError struct {
	input string
}

func (e *inputError) Error() string {
	return "unrecognized date " + strings.TrimSpace(e.input)
}

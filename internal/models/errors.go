/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the retrieval engine matches exactly
// one of these with errors.Is.
var (
	ErrUnsupportedCity     = errors.New("unsupported city")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidQuery        = errors.New("invalid query")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrParseFailure        = errors.New("parse failure")
)

var kinds = []error{
	ErrUnsupportedCity,
	ErrInvalidDate,
	ErrInvalidQuery,
	ErrUpstreamTimeout,
	ErrUpstreamUnavailable,
	ErrParseFailure,
}

// QueryError carries a failure kind, a caller-facing detail message and the
// underlying cause, if any.
type QueryError struct {
	Kind      error
	Detail    string
	Supported []string
	Err       error
}

// NewError builds a QueryError of the given kind.
func NewError(kind error, detail string, cause error) *QueryError {
	return &QueryError{Kind: kind, Detail: detail, Err: cause}
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *QueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the failure kind matched by err, or nil for errors outside
// the taxonomy.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Detail returns the caller-facing message for err.
func Detail(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) && qe.Detail != "" {
		return qe.Detail
	}
	return err.Error()
}

// KindName is a stable snake_case label for metrics, events and logs.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrUnsupportedCity:
		return "unsupported_city"
	case ErrInvalidDate:
		return "invalid_date"
	case ErrInvalidQuery:
		return "invalid_query"
	case ErrUpstreamTimeout:
		return "upstream_timeout"
	case ErrUpstreamUnavailable:
		return "upstream_unavailable"
	case ErrParseFailure:
		return "parse_failure"
	default:
		return "internal"
	}
}

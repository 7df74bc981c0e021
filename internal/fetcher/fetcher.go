/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fetcher retrieves rendered schedule pages with bounded retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/browser"
	"github.com/andref2015/train-agent/internal/events"
	"github.com/andref2015/train-agent/internal/models"
	"github.com/andref2015/train-agent/internal/telemetry"
)

// DefaultBaseURL is the search endpoint of the schedule source.
const DefaultBaseURL = "https://elron.pilet.ee/en/otsing"

// Config controls attempts against the source.
type Config struct {
	BaseURL string
	// Retries is the number of attempts after the first.
	Retries int
	// AttemptTimeout bounds one attempt, session slot wait included.
	AttemptTimeout time.Duration
	// Backoff before attempt n+1 is Backoff * n.
	Backoff time.Duration
}

// DefaultConfig returns two retries, an 8s budget and 500ms linear backoff.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Retries:        2,
		AttemptTimeout: 8 * time.Second,
		Backoff:        500 * time.Millisecond,
	}
}

// AcceptFunc inspects fetched content. Returning an error matching
// models.ErrParseFailure discards the content and spends another attempt;
// any other error ends the fetch.
type AcceptFunc func(models.RawContent) error

// Fetcher renders search pages through the browser pool.
type Fetcher struct {
	pool   *browser.Pool
	cfg    Config
	bus    events.Publisher
	logger zerolog.Logger
}

// New creates a Fetcher. A nil bus discards attempt events.
func New(pool *browser.Pool, cfg Config, bus events.Publisher, logger zerolog.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Fetcher{
		pool:   pool,
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

// URL builds the search URL for a route and date.
func (f *Fetcher) URL(origin, destination models.City, date models.TravelDate) string {
	return strings.TrimRight(f.cfg.BaseURL, "/") + "/" +
		url.PathEscape(origin.Name) + "/" +
		url.PathEscape(destination.Name) + "/" +
		date.String()
}

// Fetch returns the rendered page for the route.
func (f *Fetcher) Fetch(ctx context.Context, origin, destination models.City, date models.TravelDate) (models.RawContent, error) {
	return f.FetchWith(ctx, origin, destination, date, nil)
}

// FetchWith is Fetch with a content check run after every successful render.
// Every attempt uses a fresh browser session. The error of the last attempt
// decides the returned failure kind.
func (f *Fetcher) FetchWith(ctx context.Context, origin, destination models.City, date models.TravelDate, accept AcceptFunc) (models.RawContent, error) {
	target := f.URL(origin, destination, date)

	ctx, span := telemetry.StartSpan(ctx, "fetcher", "fetch")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"fetch.url":          target,
		"fetch.max_attempts": f.cfg.Retries + 1,
	})

	var lastErr error
	for attempt := 1; attempt <= f.cfg.Retries+1; attempt++ {
		if attempt > 1 {
			if err := f.backoff(ctx, attempt-1); err != nil {
				telemetry.RecordError(span, err)
				return models.RawContent{}, err
			}
		}

		content, err := f.attempt(ctx, target, attempt)
		if err == nil && accept != nil {
			if err = accept(content); err != nil && !errors.Is(err, models.ErrParseFailure) {
				f.record(target, attempt, content.FetchedAt, err)
				telemetry.RecordError(span, err)
				return models.RawContent{}, err
			}
		}
		f.record(target, attempt, content.FetchedAt, err)

		if err == nil {
			content.Attempts = attempt
			telemetry.AddSpanAttributes(span, map[string]any{"fetch.attempts": attempt})
			return content, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn().
			Err(err).
			Str("url", target).
			Int("attempt", attempt).
			Msg("fetch attempt failed")
	}

	telemetry.RecordError(span, lastErr)
	return models.RawContent{}, lastErr
}

// attempt runs one session. Its error is always a *models.QueryError.
// The attempt budget covers launch and render, not the wait for a slot.
func (f *Fetcher) attempt(ctx context.Context, target string, attempt int) (models.RawContent, error) {
	start := time.Now()
	f.logger.Debug().Str("url", target).Int("attempt", attempt).Msg("fetching schedule page")

	var html string
	err := f.pool.WithSession(ctx, f.cfg.AttemptTimeout, func(ctx context.Context, s browser.Session) error {
		var err error
		html, err = s.Render(ctx, target)
		return err
	})

	elapsed := time.Since(start)
	telemetry.FetchAttemptDuration.Observe(elapsed.Seconds())

	if err != nil {
		return models.RawContent{FetchedAt: start}, classify(ctx, err, f.cfg.AttemptTimeout)
	}

	f.logger.Debug().
		Str("url", target).
		Int("attempt", attempt).
		Dur("elapsed", elapsed).
		Int("bytes", len(html)).
		Msg("schedule page rendered")

	return models.RawContent{URL: target, HTML: html, FetchedAt: start}, nil
}

// classify maps a session error to a failure kind. The caller's own
// deadline and cancellation take precedence over the attempt budget.
func classify(callerCtx context.Context, err error, budget time.Duration) error {
	switch {
	case errors.Is(callerCtx.Err(), context.DeadlineExceeded):
		return models.NewError(models.ErrUpstreamTimeout, "Schedule retrieval timed out", err)
	case errors.Is(callerCtx.Err(), context.Canceled):
		return models.NewError(models.ErrUpstreamUnavailable, "Schedule retrieval was cancelled", err)
	case errors.Is(err, browser.ErrBudgetExceeded), errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.ErrUpstreamTimeout,
			fmt.Sprintf("Schedule source did not respond within %s", budget), err)
	default:
		return models.NewError(models.ErrUpstreamUnavailable, "Schedule source is unavailable", err)
	}
}

func (f *Fetcher) backoff(ctx context.Context, n int) error {
	wait := f.cfg.Backoff * time.Duration(n)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return classify(ctx, ctx.Err(), f.cfg.AttemptTimeout)
	case <-time.After(wait):
		return nil
	}
}

func (f *Fetcher) record(target string, attempt int, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = models.KindName(err)
	}
	telemetry.FetchAttemptsTotal.WithLabelValues(result).Inc()

	payload := events.Payload{
		"url":     target,
		"attempt": attempt,
		"result":  result,
	}
	if !start.IsZero() {
		payload["elapsed_ms"] = time.Since(start).Milliseconds()
	}
	f.bus.Publish(events.EventFetchAttempt, payload)
}

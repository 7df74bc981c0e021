/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/andref2015/train-agent/internal/telemetry"
)

// DefaultMaxSessions bounds concurrent browsers when no size is configured.
const DefaultMaxSessions = 2

// Pool limits the number of browsers alive at once. Callers beyond the limit
// wait for a slot or for their context to end.
type Pool struct {
	launcher Launcher
	sem      *semaphore.Weighted
	size     int64
	inUse    atomic.Int64
	logger   zerolog.Logger
}

// NewPool creates a pool of at most size concurrent sessions.
func NewPool(launcher Launcher, size int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = DefaultMaxSessions
	}
	return &Pool{
		launcher: launcher,
		sem:      semaphore.NewWeighted(int64(size)),
		size:     int64(size),
		logger:   logger.With().Str("component", "browser_pool").Logger(),
	}
}

// ErrBudgetExceeded marks a session that outlived its per-session budget
// while the caller's context was still live.
var ErrBudgetExceeded = errors.New("browser session budget exceeded")

// WithSession acquires a slot, launches a fresh session and passes it to fn.
// The wait for a slot is bounded by ctx only; budget, when positive, starts
// once the slot is held and covers launch and fn. The session is closed and
// the slot released on every return path.
func (p *Pool) WithSession(ctx context.Context, budget time.Duration, fn func(context.Context, Session) error) error {
	waitStart := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for browser slot: %w", err)
	}
	defer p.sem.Release(1)
	telemetry.BrowserSessionWaitSeconds.Observe(time.Since(waitStart).Seconds())

	sessionCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		sessionCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	session, err := p.launcher.Launch(sessionCtx)
	if err != nil {
		return p.overBudget(ctx, sessionCtx, fmt.Errorf("launch browser: %w", err))
	}
	telemetry.BrowserSessionsInUse.Set(float64(p.inUse.Add(1)))
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.logger.Warn().Err(cerr).Msg("close browser session")
		}
		telemetry.BrowserSessionsInUse.Set(float64(p.inUse.Add(-1)))
	}()

	if err := fn(sessionCtx, session); err != nil {
		return p.overBudget(ctx, sessionCtx, err)
	}
	return nil
}

func (p *Pool) overBudget(ctx, sessionCtx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(sessionCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrBudgetExceeded, err)
	}
	return err
}

// InUse reports sessions currently open.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Size reports the configured limit.
func (p *Pool) Size() int {
	return int(p.size)
}

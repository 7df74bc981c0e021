/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package browsertest provides a scripted browser.Launcher for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andref2015/train-agent/internal/browser"
)

// ErrLaunch is returned by Launch when a Step sets FailLaunch.
var ErrLaunch = errors.New("browsertest: launch failed")

// Step scripts one session. Steps are consumed in order; the last step repeats.
type Step struct {
	HTML       string
	Err        error
	FailLaunch bool
	// Delay is spent inside Render, honoring context cancellation.
	Delay time.Duration
}

// Launcher hands out sessions that replay Steps.
type Launcher struct {
	mu       sync.Mutex
	steps    []Step
	launches int
	closes   int
	renders  []string
	open     int
	maxOpen  int
}

// New returns a launcher replaying steps.
func New(steps ...Step) *Launcher {
	if len(steps) == 0 {
		steps = []Step{{}}
	}
	return &Launcher{steps: steps}
}

// Serve returns a launcher whose sessions always render html.
func Serve(html string) *Launcher {
	return New(Step{HTML: html})
}

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.launches
	if idx >= len(l.steps) {
		idx = len(l.steps) - 1
	}
	step := l.steps[idx]
	l.launches++

	if step.FailLaunch {
		return nil, ErrLaunch
	}
	l.open++
	if l.open > l.maxOpen {
		l.maxOpen = l.open
	}
	return &session{owner: l, step: step}, nil
}

// Launches reports how many sessions were requested.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Closes reports how many sessions were closed.
func (l *Launcher) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// Open reports sessions launched but not yet closed.
func (l *Launcher) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// MaxOpen reports the highest number of simultaneously open sessions.
func (l *Launcher) MaxOpen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxOpen
}

// URLs lists every URL rendered, in order.
func (l *Launcher) URLs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.renders...)
}

type session struct {
	owner  *Launcher
	step   Step
	closed bool
}

func (s *session) Render(ctx context.Context, url string) (string, error) {
	s.owner.mu.Lock()
	s.owner.renders = append(s.owner.renders, url)
	s.owner.mu.Unlock()

	if s.step.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.step.Delay):
		}
	}
	if s.step.Err != nil {
		return "", s.step.Err
	}
	return s.step.HTML, nil
}

func (s *session) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.owner.closes++
	s.owner.open--
	return nil
}

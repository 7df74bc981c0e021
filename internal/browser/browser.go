/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package browser runs headless browser sessions against the schedule
// source and bounds how many run at once.
package browser

import "context"

// Session is one browser process. It is used for a single fetch attempt and
// then closed; sessions are never shared between attempts.
type Session interface {
	// Render navigates to url and returns the page HTML once the
	// application has rendered.
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// Launcher starts fresh sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

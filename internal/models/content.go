/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// RawContent is the rendered page captured from the schedule source.
type RawContent struct {
	URL       string
	HTML      string
	FetchedAt time.Time
	// Attempts counts browser sessions used to obtain this content.
	Attempts int
}

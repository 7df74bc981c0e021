/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import "fmt"

// Version is the current version of train-agent.
// This is set at build time via ldflags:
//
//	-X github.com/andref2015/train-agent/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// Commit is the git revision, set at build time like Version.
var Commit = "dev"

// String renders the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("train-agent %s (%s)", Version, Commit)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevelByEnvironment(t *testing.T) {
	tests := []struct {
		env  string
		want zerolog.Level
	}{
		{"development", zerolog.DebugLevel},
		{"production", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		var console bytes.Buffer
		logger := setup(tt.env, &console, nil)
		if logger.GetLevel() != tt.want {
			t.Errorf("env %q: level = %s, want %s", tt.env, logger.GetLevel(), tt.want)
		}
	}
}

func TestSetupCopiesJSONToAdditionalWriter(t *testing.T) {
	var console, captured bytes.Buffer
	logger := setup("production", &console, &captured)

	logger.Info().Str("component", "trains").Msg("schedule query completed")
	logger.Debug().Msg("hidden")

	if !strings.Contains(console.String(), "schedule query completed") {
		t.Fatalf("console output missing message: %q", console.String())
	}
	if !strings.Contains(captured.String(), `"component":"trains"`) {
		t.Fatalf("additional writer did not receive JSON: %q", captured.String())
	}
	if strings.Contains(captured.String(), "hidden") {
		t.Fatal("debug event written at info level")
	}
}

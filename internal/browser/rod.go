/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// DefaultUserAgent is a desktop Chrome user agent; the source serves a
// reduced page to headless defaults.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// RodConfig configures Chrome sessions driven through the DevTools protocol.
type RodConfig struct {
	// Bin is the browser executable. Empty lets rod find or download one.
	Bin       string
	Headless  bool
	UserAgent string

	// RootSelector is awaited for at most RootWait after navigation.
	RootSelector string
	RootWait     time.Duration
	// Settle is how long the page may keep rendering after the root appears.
	Settle time.Duration
}

// DefaultRodConfig returns settings matching the source's rendering needs.
func DefaultRodConfig() RodConfig {
	return RodConfig{
		Headless:     true,
		UserAgent:    DefaultUserAgent,
		RootSelector: "app-main",
		RootWait:     3 * time.Second,
		Settle:       1500 * time.Millisecond,
	}
}

// RodLauncher starts one Chrome process per session.
type RodLauncher struct {
	cfg    RodConfig
	logger zerolog.Logger
}

// NewRodLauncher creates a launcher.
func NewRodLauncher(cfg RodConfig, logger zerolog.Logger) *RodLauncher {
	return &RodLauncher{
		cfg:    cfg,
		logger: logger.With().Str("component", "browser").Logger(),
	}
}

// Launch starts Chrome and connects to it.
func (r *RodLauncher) Launch(ctx context.Context) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(r.cfg.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("window-size", "1280,720").
		Set("blink-settings", "imagesEnabled=false")
	if r.cfg.UserAgent != "" {
		l = l.Set("user-agent", r.cfg.UserAgent)
	}
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	r.logger.Debug().Int("pid", l.PID()).Msg("browser launched")
	return &rodSession{cfg: r.cfg, launcher: l, browser: b, logger: r.logger}, nil
}

type rodSession struct {
	cfg      RodConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	logger   zerolog.Logger
}

func (s *rodSession) Render(ctx context.Context, url string) (string, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	if s.cfg.RootSelector != "" && s.cfg.RootWait > 0 {
		if _, err := s.waitForRoot(ctx, page, url); err != nil {
			return "", err
		}
	}

	if s.cfg.Settle > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.Settle):
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// waitForRoot waits at most RootWait for the application root. A missing
// root is reported by the parser, not here. The returned page is the timed
// clone, with its timer already released.
func (s *rodSession) waitForRoot(ctx context.Context, page *rod.Page, url string) (*rod.Page, error) {
	timed := page.Timeout(s.cfg.RootWait)
	defer timed.CancelTimeout()

	if _, err := timed.Element(s.cfg.RootSelector); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return timed, ctxErr
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return timed, fmt.Errorf("wait for %s: %w", s.cfg.RootSelector, err)
		}
		s.logger.Debug().Str("url", url).Msg("application root did not appear")
	}
	return timed, nil
}

// Close shuts the browser down and removes its profile directory.
func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package browser_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/browser"
	"github.com/andref2015/train-agent/internal/browser/browsertest"
)

func TestWithSessionClosesOnEveryPath(t *testing.T) {
	fake := browsertest.Serve("<app-main></app-main>")
	pool := browser.NewPool(fake, 2, zerolog.Nop())
	ctx := context.Background()

	if err := pool.WithSession(ctx, 0, func(ctx context.Context, s browser.Session) error {
		_, err := s.Render(ctx, "https://example.test/")
		return err
	}); err != nil {
		t.Fatalf("WithSession: %v", err)
	}

	boom := errors.New("boom")
	if err := pool.WithSession(ctx, 0, func(context.Context, browser.Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	func() {
		defer func() { _ = recover() }()
		_ = pool.WithSession(ctx, 0, func(context.Context, browser.Session) error { panic("render crashed") })
	}()

	if fake.Launches() != 3 || fake.Closes() != 3 || fake.Open() != 0 {
		t.Fatalf("launches=%d closes=%d open=%d", fake.Launches(), fake.Closes(), fake.Open())
	}
	if pool.InUse() != 0 {
		t.Fatalf("pool reports %d in use", pool.InUse())
	}
}

func TestWithSessionLaunchFailureReleasesSlot(t *testing.T) {
	fake := browsertest.New(browsertest.Step{FailLaunch: true}, browsertest.Step{HTML: "ok"})
	pool := browser.NewPool(fake, 1, zerolog.Nop())

	err := pool.WithSession(context.Background(), 0, func(context.Context, browser.Session) error { return nil })
	if !errors.Is(err, browsertest.ErrLaunch) {
		t.Fatalf("expected launch error, got %v", err)
	}

	// The single slot must be free again.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.WithSession(ctx, 0, func(context.Context, browser.Session) error { return nil }); err != nil {
		t.Fatalf("second session: %v", err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	fake := browsertest.New(browsertest.Step{HTML: "ok", Delay: 30 * time.Millisecond})
	pool := browser.NewPool(fake, 2, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.WithSession(context.Background(), 0, func(ctx context.Context, s browser.Session) error {
				_, err := s.Render(ctx, "https://example.test/")
				return err
			})
		}()
	}
	wg.Wait()

	if fake.MaxOpen() > 2 {
		t.Fatalf("max open sessions = %d, limit 2", fake.MaxOpen())
	}
	if fake.Launches() != 6 || fake.Open() != 0 {
		t.Fatalf("launches=%d open=%d", fake.Launches(), fake.Open())
	}
}

func TestWithSessionHonorsContextWhileQueued(t *testing.T) {
	fake := browsertest.Serve("ok")
	pool := browser.NewPool(fake, 1, zerolog.Nop())

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.WithSession(context.Background(), 0, func(context.Context, browser.Session) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.WithSession(ctx, 0, func(context.Context, browser.Session) error { return nil })
	close(hold)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestWithSessionBudgetStartsOnceSlotIsHeld(t *testing.T) {
	fake := browsertest.New(browsertest.Step{HTML: "ok", Delay: 40 * time.Millisecond})
	pool := browser.NewPool(fake, 1, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = pool.WithSession(context.Background(), 100*time.Millisecond, func(ctx context.Context, s browser.Session) error {
				_, err := s.Render(ctx, "https://example.test/")
				return err
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("session %d: %v", i, err)
		}
	}
	if fake.Launches() != 3 || fake.MaxOpen() != 1 {
		t.Fatalf("launches=%d max open=%d", fake.Launches(), fake.MaxOpen())
	}
}

func TestWithSessionReportsExceededBudget(t *testing.T) {
	fake := browsertest.New(browsertest.Step{HTML: "ok", Delay: time.Second})
	pool := browser.NewPool(fake, 1, zerolog.Nop())

	err := pool.WithSession(context.Background(), 20*time.Millisecond, func(ctx context.Context, s browser.Session) error {
		_, err := s.Render(ctx, "https://example.test/")
		return err
	})
	if !errors.Is(err, browser.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if fake.Open() != 0 {
		t.Fatalf("open sessions = %d", fake.Open())
	}
}

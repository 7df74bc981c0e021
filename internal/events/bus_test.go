/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"testing"
	"time"
)

func TestBusDeliversToSubscribersOfType(t *testing.T) {
	bus := NewBus()
	completed := bus.Subscribe(EventQueryCompleted)
	failed := bus.Subscribe(EventQueryFailed)

	bus.Publish(EventQueryCompleted, Payload{"total_found": 3})

	select {
	case p := <-completed:
		if p["total_found"] != 3 {
			t.Fatalf("unexpected payload %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("completed subscriber did not receive event")
	}

	select {
	case p := <-failed:
		t.Fatalf("failed subscriber received %v", p)
	default:
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventFetchAttempt)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(sub)+10; i++ {
			bus.Publish(EventFetchAttempt, Payload{"attempt": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(sub) != cap(sub) {
		t.Fatalf("expected full buffer, got %d/%d", len(sub), cap(sub))
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventQueryFailed)
	bus.Unsubscribe(EventQueryFailed, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	if n := bus.Subscribers(EventQueryFailed); n != 0 {
		t.Fatalf("subscribers = %d", n)
	}

	// Unknown and repeated unsubscribes are no-ops.
	bus.Unsubscribe(EventQueryFailed, sub)
	bus.Publish(EventQueryFailed, Payload{})
}

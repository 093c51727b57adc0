package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"
)

func drainOne(t *testing.T, sub Subscription) bool {
	t.Helper()
	select {
	case <-sub.Signals():
		return true
	case <-time.After(time.Second):
		return false
	}
}

func TestPublishReachesEveryTopicSubscriber(t *testing.T) {
	bus := NewFanout()
	ctx := context.Background()

	first, err := bus.Subscribe(ctx, "match.a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := bus.Subscribe(ctx, "match.a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	other, err := bus.Subscribe(ctx, "match.b")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "match.a"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !drainOne(t, first) || !drainOne(t, second) {
		t.Fatal("both topic members should be signalled")
	}
	select {
	case <-other.Signals():
		t.Fatal("signal leaked to a different topic")
	default:
	}
}

func TestPublishNeverBlocksOnBackloggedSubscriber(t *testing.T) {
	bus := NewFanout()
	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, "match.a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody drains the subscription; publishes must coalesce, not block.
		for i := 0; i < 100; i++ {
			if err := bus.Publish(ctx, "match.a"); err != nil {
				t.Errorf("publish %d: %v", i, err)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	if !drainOne(t, sub) {
		t.Fatal("coalesced signal missing")
	}
	if bus.Published() != 100 {
		t.Fatalf("unexpected publish count: %d", bus.Published())
	}
}

func TestClosedSubscriptionReceivesNothing(t *testing.T) {
	bus := NewFanout()
	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, "match.a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := bus.Publish(ctx, "match.a"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case _, ok := <-sub.Signals():
		if ok {
			t.Fatal("closed subscription still signalled")
		}
	case <-time.After(time.Second):
		t.Fatal("signal channel should be closed after Close")
	}
}

func TestPublishToEmptyTopicSucceeds(t *testing.T) {
	bus := NewFanout()
	if err := bus.Publish(context.Background(), "match.nobody"); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}
}

func TestBusCloseRacesSubscriptionClose(t *testing.T) {
	// A disconnecting client closing its subscription while the bus shuts
	// down must not wedge either goroutine.
	for trial := 0; trial < 200; trial++ {
		bus := NewFanout()
		ctx := context.Background()
		subs := make([]Subscription, 4)
		for i := range subs {
			sub, err := bus.Subscribe(ctx, "match.a")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			subs[i] = sub
		}

		start := make(chan struct{})
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(len(subs) + 1)
		for _, sub := range subs {
			sub := sub
			go func() {
				defer wg.Done()
				<-start
				_ = sub.Close()
			}()
		}
		go func() {
			defer wg.Done()
			<-start
			_ = bus.Close()
		}()
		go func() {
			wg.Wait()
			close(done)
		}()

		close(start)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("trial %d: close paths deadlocked", trial)
		}
		for i, sub := range subs {
			if _, ok := <-sub.Signals(); ok {
				t.Fatalf("trial %d: subscription %d channel still open", trial, i)
			}
		}
	}
}

func TestBusRejectsUseAfterClose(t *testing.T) {
	bus := NewFanout()
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := bus.Subscribe(context.Background(), "match.a"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := bus.Publish(context.Background(), "match.a"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

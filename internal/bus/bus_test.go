package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)

	b.Publish()

	for name, ch := range map[string]<-chan struct{}{"first": first, "second": second} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Errorf("%s subscriber never signaled", name)
		}
	}
}

func TestPublishCoalescesWhileSubscriberIsBusy(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	b.Publish()
	b.Publish()
	b.Publish()

	<-ch
	select {
	case <-ch:
		t.Error("burst of publishes should coalesce into one pending signal")
	default:
	}

	// A publish after draining signals again.
	b.Publish()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Error("publish after drain never signaled")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a busy subscriber")
	}
}

func TestCancelledSubscriptionStopsReceiving(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	// Removal happens on a goroutine; give it a moment.
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		n := len(b.subs)
		b.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription never removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish()
	select {
	case <-ch:
		t.Error("cancelled subscription still received a signal")
	default:
	}
}

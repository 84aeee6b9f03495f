package events

import (
	"context"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan ProgressEvent, n int) []ProgressEvent {
	t.Helper()
	var out []ProgressEvent
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed after %d of %d events", len(out), n)
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	pubSub := NewPubSub(8)
	defer pubSub.Close()

	bus := NewBus(pubSub, "s1")

	done := make(chan struct{})
	go func() {
		bus.Publish(ProgressEvent{Type: KindStageStart})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestSubscriberReceivesEventsInOrder(t *testing.T) {
	pubSub := NewPubSub(8)
	defer pubSub.Close()

	bus := NewBus(pubSub, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	kinds := []Kind{KindStageStart, KindSearching, KindCompleted, KindStageComplete}
	go func() {
		for _, k := range kinds {
			bus.Publish(ProgressEvent{Type: k})
		}
	}()

	got := collect(t, ch, len(kinds))
	for i, ev := range got {
		if ev.Type != kinds[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Type, kinds[i])
		}
		if ev.ID == "" {
			t.Errorf("event %d has no id", i)
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("event %d has no timestamp", i)
		}
	}
}

func TestEachSubscriberGetsEveryEventOnce(t *testing.T) {
	pubSub := NewPubSub(8)
	defer pubSub.Close()

	bus := NewBus(pubSub, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ch2, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	const n = 5
	go func() {
		for i := 0; i < n; i++ {
			bus.Publish(ProgressEvent{Type: KindSearching, Step: i})
		}
	}()

	for name, ch := range map[string]<-chan ProgressEvent{"first": ch1, "second": ch2} {
		got := collect(t, ch, n)
		seen := make(map[string]bool)
		for i, ev := range got {
			if ev.Step != i {
				t.Errorf("%s subscriber: event %d has step %d", name, i, ev.Step)
			}
			if seen[ev.ID] {
				t.Errorf("%s subscriber: duplicate event %s", name, ev.ID)
			}
			seen[ev.ID] = true
		}
	}
}

func TestSlowSubscriberThrottlesPublisherWithoutLoss(t *testing.T) {
	// Tiny transport buffer, so the publisher overruns both the transport
	// and the subscriber channel well before the slow consumer catches up.
	pubSub := NewPubSub(1)
	defer pubSub.Close()

	bus := NewBus(pubSub, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	const total = 50
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < total; i++ {
			bus.Publish(ProgressEvent{Type: KindSearching, Step: i})
		}
	}()

	var got []ProgressEvent
	timeout := time.After(5 * time.Second)
	for len(got) < total {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed after %d of %d events", len(got), total)
			}
			time.Sleep(time.Millisecond) // slow consumer
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(got), total)
		}
	}

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after all events were consumed")
	}

	for i, ev := range got {
		if ev.Step != i {
			t.Fatalf("event %d has step %d, want %d (dropped or reordered)", i, ev.Step, i)
		}
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	pubSub := NewPubSub(8)
	defer pubSub.Close()

	busA := NewBus(pubSub, "a")
	busB := NewBus(pubSub, "b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chB, err := busB.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	go busA.Publish(ProgressEvent{Type: KindStageStart})
	go busB.Publish(ProgressEvent{Type: KindCompleted})

	got := collect(t, chB, 1)
	if got[0].Type != KindCompleted {
		t.Errorf("subscriber of b received %s", got[0].Type)
	}

	select {
	case ev := <-chB:
		t.Errorf("unexpected cross-session event %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	pubSub := NewPubSub(8)
	defer pubSub.Close()

	bus := NewBus(pubSub, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

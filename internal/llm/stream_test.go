package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestEventStreamDeliversThenEOF(t *testing.T) {
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		sendEvent(ctx, events, Event{Type: EventTextDelta, Text: "a"})
		sendEvent(ctx, events, Event{Type: EventTextDelta, Text: "b"})
		return nil
	})
	defer stream.Close()

	for _, want := range []string{"a", "b"} {
		ev, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if ev.Text != want {
			t.Errorf("Text = %q, want %q", ev.Text, want)
		}
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestEventStreamErrorAfterDrain(t *testing.T) {
	boom := errors.New("boom")
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		sendEvent(ctx, events, Event{Type: EventTextDelta, Text: "partial"})
		return boom
	})
	defer stream.Close()

	ev, err := stream.Recv()
	if err != nil || ev.Text != "partial" {
		t.Fatalf("first Recv = %+v, %v", ev, err)
	}
	if _, err := stream.Recv(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestEventStreamCloseStopsProducer(t *testing.T) {
	done := make(chan struct{})
	stream := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		defer close(done)
		for {
			if !sendEvent(ctx, events, Event{Type: EventTextDelta, Text: "x"}) {
				return ctx.Err()
			}
		}
	})

	if _, err := stream.Recv(); err != nil {
		t.Fatal(err)
	}
	stream.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer did not stop after Close")
	}
}

func TestStallWatchdogDisabledForZeroWindow(t *testing.T) {
	inner := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		return nil
	})
	defer inner.Close()
	if got := withStallWatchdog(inner, 0); got != inner {
		t.Error("zero window should return the stream unchanged")
	}
}

func TestStallWatchdogPassesEvents(t *testing.T) {
	inner := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		sendEvent(ctx, events, Event{Type: EventTextDelta, Text: "ok"})
		return nil
	})
	watched := withStallWatchdog(inner, time.Second)
	defer watched.Close()

	ev, err := watched.Recv()
	if err != nil || ev.Text != "ok" {
		t.Fatalf("Recv = %+v, %v", ev, err)
	}
	if _, err := watched.Recv(); err != io.EOF {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestStallWatchdogFires(t *testing.T) {
	inner := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		sendEvent(ctx, events, Event{Type: EventTextDelta, Text: "early"})
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		sendEvent(ctx, events, Event{Type: EventTextDelta, Text: "late"})
		return nil
	})
	watched := withStallWatchdog(inner, 30*time.Millisecond)
	defer watched.Close()

	if ev, err := watched.Recv(); err != nil || ev.Text != "early" {
		t.Fatalf("first Recv = %+v, %v", ev, err)
	}
	if _, err := watched.Recv(); !errors.Is(err, ErrStreamStalled) {
		t.Fatalf("err = %v, want ErrStreamStalled", err)
	}
	// A stalled stream stays stalled.
	if _, err := watched.Recv(); !errors.Is(err, ErrStreamStalled) {
		t.Errorf("repeat err = %v, want ErrStreamStalled", err)
	}
}

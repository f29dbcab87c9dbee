package llm

import (
	"io"
	"sync"
	"time"

	"context"
)

// eventStream adapts a producer goroutine to the Stream interface. The
// producer writes events to a bounded channel and returns when done; its
// error (if any) is delivered to the consumer after the channel drains.
type eventStream struct {
	events chan Event
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// newEventStream runs produce in a goroutine and returns a Stream over its
// events. Cancelling the parent context or calling Close stops the producer;
// producers must honor ctx when sending.
func newEventStream(ctx context.Context, produce func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 64),
		cancel: cancel,
	}
	go func() {
		err := produce(ctx, s.events)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if !ok {
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return Event{}, err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Drain so a producer blocked on send can observe cancellation.
		go func() {
			for range s.events {
			}
		}()
	})
	return nil
}

// sendEvent delivers an event unless the context is done. Producers use it
// so that a closed consumer never wedges them on a full channel.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// watchedStream wraps a Stream with an idle watchdog: if no event arrives
// within window, Recv reports ErrStreamStalled and the underlying stream is
// torn down. Partial output already delivered stays with the caller.
type watchedStream struct {
	inner  Stream
	window time.Duration
	recvCh chan recvResult

	mu      sync.Mutex
	stalled bool
	closed  bool
}

type recvResult struct {
	ev  Event
	err error
}

func withStallWatchdog(inner Stream, window time.Duration) Stream {
	if window <= 0 {
		return inner
	}
	w := &watchedStream{
		inner:  inner,
		window: window,
		recvCh: make(chan recvResult),
	}
	go w.pump()
	return w
}

func (w *watchedStream) pump() {
	for {
		ev, err := w.inner.Recv()
		w.recvCh <- recvResult{ev: ev, err: err}
		if err != nil {
			close(w.recvCh)
			return
		}
	}
}

func (w *watchedStream) Recv() (Event, error) {
	w.mu.Lock()
	if w.stalled {
		w.mu.Unlock()
		return Event{}, ErrStreamStalled
	}
	w.mu.Unlock()

	timer := time.NewTimer(w.window)
	defer timer.Stop()

	select {
	case res, ok := <-w.recvCh:
		if !ok {
			return Event{}, io.EOF
		}
		return res.ev, res.err
	case <-timer.C:
		w.mu.Lock()
		w.stalled = true
		w.mu.Unlock()
		w.Close()
		return Event{}, ErrStreamStalled
	}
}

func (w *watchedStream) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.inner.Close()
	// Drain the pump so it can exit after inner.Recv unblocks.
	go func() {
		for range w.recvCh {
		}
	}()
	return err
}

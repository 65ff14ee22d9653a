package progress

import (
	"context"
	"sync"
)

// Tap observes every event passing through a Stream. Taps must not
// block; they exist for logging and metrics side channels.
type Tap interface {
	Observe(Event)
}

// Stream is the single event channel for one pipeline run. The
// orchestrator emits, including concurrently from within an
// enrichment wave; the channel send serializes emissions into the
// order the one consumer (the SSE handler) observes. The orchestrator
// closes the stream when the run reaches a terminal state.
type Stream struct {
	ch   chan Event
	taps []Tap

	closeOnce sync.Once
}

const defaultBuffer = 16

// NewStream builds a Stream with a small buffer so the producer can
// run slightly ahead of a slow consumer without reordering events.
func NewStream(taps ...Tap) *Stream {
	return &Stream{
		ch:   make(chan Event, defaultBuffer),
		taps: taps,
	}
}

// Emit validates and delivers one event in emission order. It blocks
// when the buffer is full and returns the context error if the
// consumer is gone, which the orchestrator treats as cancellation.
func (s *Stream) Emit(ctx context.Context, evt Event) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	for _, tap := range s.taps {
		tap.Observe(evt)
	}
	select {
	case s.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the consumer side of the stream. The channel closes
// after the terminal event has been emitted.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close ends the stream. Safe to call multiple times; only the
// producer may call it.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}

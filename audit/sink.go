package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// ErrSinkClosed is returned by sinks written to after Close.
var ErrSinkClosed = errors.New("audit sink closed")

// Sink receives sealed audit events. Write must honor ctx.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, event Event) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

// Write implements [Sink].
func (NoOpSink) Write(context.Context, Event) error { return nil }

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

// Write implements [Sink]. It blocks until buffered or ctx is done.
func (s *ChannelSink) Write(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the channel for consumers.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Write implements [Sink].
func (s *JSONWriterSink) Write(ctx context.Context, event Event) error {
	if s == nil || s.writer == nil {
		return ErrSinkClosed
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

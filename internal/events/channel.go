package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to a closed source.
var ErrClosed = errors.New("event source closed")

// ChannelSource is an in-process Source fed by Publish.
type ChannelSource struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan Event, buffer)}
}

// Publish enqueues an event, blocking while the buffer is full.
func (s *ChannelSource) Publish(ctx context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the source once buffered events are drained. Safe to call twice.
func (s *ChannelSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *ChannelSource) Consume(ctx context.Context) (<-chan Event, <-chan error) {
	out := make(chan Event)
	errCh := make(chan error)
	go func() {
		defer close(out)
		defer close(errCh)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-s.ch:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errCh
}

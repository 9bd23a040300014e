package frame

import (
	"context"
	"sync"
	"time"
)

// ChannelSource receives frames pushed by a producer (HTTP upload or websocket).
// It keeps only the most recent unread frame: a slow consumer always sees the
// freshest image instead of a backlog.
type ChannelSource struct {
	frames chan Frame
	done   chan struct{}

	mu     sync.Mutex
	seq    uint64
	closed bool
}

func NewChannelSource() *ChannelSource {
	return &ChannelSource{
		frames: make(chan Frame, 1),
		done:   make(chan struct{}),
	}
}

// Push offers a frame, replacing any frame the consumer has not read yet.
func (s *ChannelSource) Push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.seq++
	f := Frame{Data: data, Seq: s.seq, CapturedAt: time.Now()}

	// drop the stale frame if present
	select {
	case <-s.frames:
	default:
	}
	s.frames <- f
	return nil
}

func (s *ChannelSource) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *ChannelSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

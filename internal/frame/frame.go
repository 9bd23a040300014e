// Package frame abstracts the kiosk camera as a pull-based sequence of frames.
package frame

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrExhausted is returned by Next when a finite source has no more frames.
	ErrExhausted = errors.New("frame source exhausted")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("frame source closed")
)

// Frame is one encoded image pulled from a Source.
type Frame struct {
	Data       []byte
	Seq        uint64
	CapturedAt time.Time
}

// Source yields frames one at a time. Next blocks until a frame is available,
// the context is done, or the source ends. Any other error is a sensor fault
// and the caller may retry.
//
// A Source is owned by one session loop and is not safe for concurrent Next calls.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

package frame

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// DirSource replays the images of a directory in lexical order, then reports
// ErrExhausted. Useful for demos and for replaying a recorded session.
type DirSource struct {
	files  []string
	next   int
	closed bool
}

// NewDirSource lists the image files of dir. A missing or unreadable
// directory is a precondition failure.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	return &DirSource{files: files}, nil
}

func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.closed {
		return Frame{}, ErrClosed
	}
	if s.next >= len(s.files) {
		return Frame{}, ErrExhausted
	}

	path := s.files[s.next]
	s.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame %s: %w", filepath.Base(path), err)
	}

	return Frame{Data: data, Seq: uint64(s.next), CapturedAt: time.Now()}, nil
}

// Len returns the number of frames the source replays.
func (s *DirSource) Len() int {
	return len(s.files)
}

func (s *DirSource) Close() error {
	s.closed = true
	return nil
}

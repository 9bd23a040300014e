package frame

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxSnapshotSize bounds a single camera response.
const maxSnapshotSize = 10 << 20

// SnapshotSource pulls JPEG stills from an IP camera's snapshot endpoint.
type SnapshotSource struct {
	url        string
	httpClient *http.Client
	seq        uint64
	closed     bool
}

func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	return &SnapshotSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ping checks that the camera answers, so an unreachable camera is reported
// before a session starts.
func (s *SnapshotSource) Ping(ctx context.Context) error {
	_, err := s.fetch(ctx)
	return err
}

func (s *SnapshotSource) Next(ctx context.Context) (Frame, error) {
	if s.closed {
		return Frame{}, ErrClosed
	}

	data, err := s.fetch(ctx)
	if err != nil {
		return Frame{}, err
	}

	s.seq++
	return Frame{Data: data, Seq: s.seq, CapturedAt: time.Now()}, nil
}

func (s *SnapshotSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: camera returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if err := Validate(data); err != nil {
		return nil, err
	}

	return data, nil
}

func (s *SnapshotSource) Close() error {
	s.closed = true
	s.httpClient.CloseIdleConnections()
	return nil
}

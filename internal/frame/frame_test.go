package frame

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestChannelSource_KeepsLatestFrame(t *testing.T) {
	src := NewChannelSource()
	defer src.Close()

	require.NoError(t, src.Push([]byte("first")))
	require.NoError(t, src.Push([]byte("second")))

	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), f.Data)
	assert.Equal(t, uint64(2), f.Seq)
}

func TestChannelSource_NextBlocksUntilPush(t *testing.T) {
	src := NewChannelSource()
	defer src.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = src.Push([]byte("late"))
	}()

	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), f.Data)
}

func TestChannelSource_ContextDone(t *testing.T) {
	src := NewChannelSource()
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelSource_Close(t *testing.T) {
	src := NewChannelSource()
	require.NoError(t, src.Close())
	require.NoError(t, src.Close(), "close is idempotent")

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, src.Push([]byte("x")), ErrClosed)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002.png"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.jpg"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o700))

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	ctx := context.Background()
	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), f.Data)

	f, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), f.Data)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, src.Close())
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewDirSource_MissingDir(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSnapshotSource(t *testing.T) {
	frame := pngFrame(t, 4, 4)
	var mu sync.Mutex
	status := http.StatusOK
	body := frame
	respond := func(s int, b []byte) {
		mu.Lock()
		defer mu.Unlock()
		status, body = s, b
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	src := NewSnapshotSource(server.URL, time.Second)
	defer src.Close()

	ctx := context.Background()
	require.NoError(t, src.Ping(ctx))

	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, frame, f.Data)
	assert.Equal(t, uint64(1), f.Seq)

	respond(http.StatusOK, []byte("<html>camera busy</html>"))
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrUndecodable)

	respond(http.StatusServiceUnavailable, nil)
	_, err = src.Next(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

type countingSource struct {
	calls int
}

func (c *countingSource) Next(context.Context) (Frame, error) {
	c.calls++
	return Frame{Seq: uint64(c.calls)}, nil
}

func (c *countingSource) Close() error { return nil }

func TestLimit(t *testing.T) {
	inner := &countingSource{}
	assert.Same(t, Source(inner), Limit(inner, 0))

	src := Limit(inner, 50)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := src.Next(ctx)
		require.NoError(t, err)
	}

	// first frame passes on the burst token, the next three wait ~20ms each
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 4, inner.calls)
}

func TestLimit_RespectsContext(t *testing.T) {
	src := Limit(&countingSource{}, 0.1)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := src.Next(ctx)
	require.NoError(t, err)

	cancel()
	_, err = src.Next(ctx)
	assert.Error(t, err)
}

func TestLimit_TokenPastDeadline(t *testing.T) {
	inner := &countingSource{}
	src := Limit(inner, 2)

	_, err := src.Next(context.Background())
	require.NoError(t, err)

	// next token is 500ms away, the deadline only 80ms
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond, "waits out the deadline")
	assert.Equal(t, 1, inner.calls)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(pngFrame(t, 2, 2)))
	assert.ErrorIs(t, Validate(nil), ErrUndecodable)
	assert.ErrorIs(t, Validate([]byte("alice")), ErrUndecodable)
}

func TestCropJPEG(t *testing.T) {
	data := pngFrame(t, 20, 20)

	out, err := CropJPEG(data, image.Rect(5, 5, 15, 30))
	require.NoError(t, err)

	img, format, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 15, img.Bounds().Dy(), "region is clamped to the frame")

	_, err = CropJPEG(data, image.Rect(100, 100, 120, 120))
	assert.Error(t, err)
}

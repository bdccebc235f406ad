package output

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
)

func sampleResult() *capture.Result {
	return &capture.Result{
		ID:                 "0f8fad5b-d9cb-469f-a165-70867728950e",
		Bitmap:             []byte{0x89, 'P', 'N', 'G'},
		MediaType:          "image/png",
		BitmapRect:         geom.PixelRect{X: 200, Y: 200, Width: 400, Height: 200},
		SourcePageIndex:    3,
		OriginalScreenRect: geom.Rect{X: 100, Y: 100, Width: 200, Height: 100},
		CapturedAt:         time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestDirectorySinkWritesBitmapAndSidecar(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")
	sink, err := NewDirectorySink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), sampleResult()))

	base := "20250301T123000.000_p003_0f8fad5b"
	bitmap, err := os.ReadFile(filepath.Join(dir, base+".png"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, bitmap)

	raw, err := os.ReadFile(filepath.Join(dir, base+".json"))
	require.NoError(t, err)
	var meta Sidecar
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, 3, meta.Page)
	assert.Equal(t, geom.PixelRect{X: 200, Y: 200, Width: 400, Height: 200}, meta.Coordinates)
	assert.Equal(t, base+".png", meta.File)
}

func TestDirectorySinkUsesJPEGExtension(t *testing.T) {
	sink, err := NewDirectorySink(t.TempDir())
	require.NoError(t, err)

	res := sampleResult()
	res.MediaType = "image/jpeg"
	require.NoError(t, sink.Write(context.Background(), res))

	matches, err := filepath.Glob(filepath.Join(sink.Dir(), "*.jpg"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestBroadcasterFansOut(t *testing.T) {
	b := NewBroadcaster()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubC()

	res := sampleResult()
	require.NoError(t, b.Write(context.Background(), res))
	assert.Same(t, res, <-a)
	assert.Same(t, res, <-c)

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())

	// A full buffer drops instead of blocking.
	require.NoError(t, b.Write(context.Background(), res))
	require.NoError(t, b.Write(context.Background(), res))
	assert.Len(t, c, 1)
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe(1)
	b.Close()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	late, _ := b.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

type failingSink struct{ err error }

func (f failingSink) Name() string { return "failing" }

func (f failingSink) Write(context.Context, *capture.Result) error { return f.err }

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	b := NewBroadcaster()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	err := MultiSink{failingSink{err: boom}, b}.Write(context.Background(), sampleResult())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Len(t, ch, 1, "later sinks still run")
}

func TestMJPEGStreamsFrames(t *testing.T) {
	source := func(context.Context) (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
	}
	m := NewMJPEGOutput(MJPEGConfig{FPS: 50}, source)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Error(t, m.Start(context.Background()))

	srv := httptest.NewServer(m.HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame", strings.TrimSpace(line))

	assert.Eventually(t, func() bool { return m.Stats().Frames > 0 }, time.Second, 10*time.Millisecond)
}

func TestMJPEGStopIsIdempotent(t *testing.T) {
	m := NewMJPEGOutput(MJPEGConfig{}, nil)
	assert.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
}

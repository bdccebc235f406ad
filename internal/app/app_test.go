package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/PageGrab/internal/clock"
	"github.com/bryanchriswhite/PageGrab/internal/config"
	"github.com/bryanchriswhite/PageGrab/internal/document"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	m, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	cfg := *m.Get()
	cfg.Render.PageGapPx = 10
	cfg.Render.ViewportWidth = 200
	cfg.Render.ViewportHeight = 100
	return cfg
}

func TestCaptureDeliversToSinks(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	results, unsubscribe := a.Captures.Subscribe(1)
	defer unsubscribe()

	session, err := a.Viewer.Open(context.Background(), document.NewSynthetic(2, document.Size{Width: 72, Height: 36}))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = session.Wait(ctx)
	require.NoError(t, err)

	res, err := a.Capture(context.Background(), geom.Rect{X: 52, Y: 10, Width: 96, Height: 48})
	require.NoError(t, err)
	assert.Equal(t, geom.PixelRect{X: 0, Y: 0, Width: 144, Height: 72}, res.BitmapRect)
	assert.Same(t, res, <-results)

	pngs, err := filepath.Glob(filepath.Join(cfg.Capture.OutputDir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 1)
}

func TestFailedCaptureIsNotDelivered(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	results, unsubscribe := a.Captures.Subscribe(1)
	defer unsubscribe()

	_, err = a.Capture(context.Background(), geom.Rect{X: 1, Y: 1, Width: 30, Height: 30})
	assert.Error(t, err)
	assert.Len(t, results, 0)
}

func TestPreviewFrameMatchesViewport(t *testing.T) {
	a, err := New(testConfig(t), WithClock(clock.NewFake(time.Now())))
	require.NoError(t, err)
	defer a.Close()

	frame, err := a.PreviewFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, frame.Bounds().Dx())
	assert.Equal(t, 100, frame.Bounds().Dy())
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.Policy = "nearest"
	_, err := New(cfg)
	assert.Error(t, err)
}

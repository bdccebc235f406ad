package overlay

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/selection"
	"github.com/bryanchriswhite/PageGrab/internal/surface"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPagesLayerScalesVisiblePages(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	surfaces := []surface.Descriptor{
		{
			PageIndex:    1,
			ScreenBounds: geom.Rect{X: 10, Y: 10, Width: 40, Height: 20},
			BitmapWidth:  80, BitmapHeight: 40,
			Visible: true,
			Raster:  surface.NewImageRaster(solid(80, 40, red)),
		},
		{
			PageIndex:    2,
			ScreenBounds: geom.Rect{X: 10, Y: 60, Width: 40, Height: 20},
			BitmapWidth:  80, BitmapHeight: 40,
			Visible: false,
			Raster:  surface.NewImageRaster(solid(80, 40, green)),
		},
	}

	m := NewManager(NewPagesLayer(func() []surface.Descriptor { return surfaces }))
	img, err := m.Render(context.Background(), 100, 100)
	require.NoError(t, err)

	assert.Equal(t, red, img.RGBAAt(30, 20))
	assert.Equal(t, backdrop, img.RGBAAt(5, 5))
	assert.Equal(t, backdrop, img.RGBAAt(30, 70), "invisible pages are not drawn")
}

func TestPagesLayerSkipsPendingRasters(t *testing.T) {
	surfaces := []surface.Descriptor{{
		PageIndex:    1,
		ScreenBounds: geom.Rect{Width: 50, Height: 50},
		BitmapWidth:  50, BitmapHeight: 50,
		Visible: true,
		Raster:  surface.PendingRaster{Width: 50, Height: 50},
	}}

	m := NewManager(NewPagesLayer(func() []surface.Descriptor { return surfaces }))
	img, err := m.Render(context.Background(), 60, 60)
	require.NoError(t, err)
	assert.Equal(t, backdrop, img.RGBAAt(25, 25))
}

func TestSelectionLayerDrawsBorder(t *testing.T) {
	snap := selection.Snapshot{
		Active:  true,
		HasRect: true,
		Rect:    geom.Rect{X: 40, Y: 60, Width: 50, Height: 30},
	}
	m := NewManager(NewSelectionLayer(func() selection.Snapshot { return snap }))

	img, err := m.Render(context.Background(), 200, 200)
	require.NoError(t, err)
	assert.Equal(t, selectionBorder, img.RGBAAt(40, 75), "left border")
	assert.Equal(t, selectionBorder, img.RGBAAt(89, 89), "bottom-right corner")
	assert.NotEqual(t, color.RGBA{}, img.RGBAAt(150, 150), "mode tint covers the viewport")
}

func TestSelectionLayerIdleDrawsNothing(t *testing.T) {
	m := NewManager(NewSelectionLayer(func() selection.Snapshot { return selection.Snapshot{} }))
	img, err := m.Render(context.Background(), 20, 20)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{}, img.RGBAAt(10, 10))
}

func TestDisabledManagerKeepsPagesOnly(t *testing.T) {
	snap := selection.Snapshot{Active: true}
	m := NewManager(
		NewPagesLayer(func() []surface.Descriptor { return nil }),
		NewSelectionLayer(func() selection.Snapshot { return snap }),
	)
	m.SetEnabled(false)

	img, err := m.Render(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, backdrop, img.RGBAAt(5, 5))
}

func TestRenderPNG(t *testing.T) {
	m := NewManager(NewPagesLayer(func() []surface.Descriptor { return nil }))

	var buf bytes.Buffer
	require.NoError(t, m.RenderPNG(context.Background(), &buf, 32, 16))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())

	_, err = m.Render(context.Background(), 0, 10)
	assert.Error(t, err)
}

func TestManagerLayerBookkeeping(t *testing.T) {
	m := NewManager()
	layer := NewPagesLayer(func() []surface.Descriptor { return nil })

	require.NoError(t, m.AddLayer(layer))
	assert.Error(t, m.AddLayer(layer))
	require.NoError(t, m.RemoveLayer("pages"))
	assert.Error(t, m.RemoveLayer("pages"))
}

func TestSizeLabel(t *testing.T) {
	assert.Equal(t, "200×100px", SizeLabel(200, 100))
	assert.Equal(t, "21×34px", SizeLabel(20.6, 33.7))
}

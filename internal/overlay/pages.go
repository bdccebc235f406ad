package overlay

import (
	"context"
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/PageGrab/internal/logger"
	"github.com/bryanchriswhite/PageGrab/internal/surface"
)

// PagesLayer paints the visible page surfaces at their screen bounds,
// scaling each native-resolution raster down (or up) to display size.
type PagesLayer struct {
	surfaces func() []surface.Descriptor
	scaler   draw.Scaler
}

// NewPagesLayer draws whatever surfaces returns at draw time.
func NewPagesLayer(surfaces func() []surface.Descriptor) *PagesLayer {
	return &PagesLayer{surfaces: surfaces, scaler: draw.ApproxBiLinear}
}

func (l *PagesLayer) ID() string { return "pages" }

func (l *PagesLayer) Z() int { return 0 }

func (l *PagesLayer) Draw(ctx context.Context, dst *image.RGBA) error {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(backdrop), image.Point{}, draw.Src)

	for _, d := range l.surfaces() {
		if !d.Visible || d.Raster == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		target := image.Rect(
			int(math.Round(d.ScreenBounds.X)),
			int(math.Round(d.ScreenBounds.Y)),
			int(math.Round(d.ScreenBounds.Right())),
			int(math.Round(d.ScreenBounds.Bottom())),
		)
		if target.Intersect(dst.Bounds()).Empty() {
			continue
		}

		src, err := d.Raster.ReadRegion(ctx, d.Raster.Bounds())
		if err != nil {
			if errors.Is(err, surface.ErrRasterNotReady) {
				continue
			}
			logger.WithComponent("overlay").Warn().Err(err).Int("page", d.PageIndex).Msg("Failed to read page raster")
			continue
		}
		l.scaler.Scale(dst, target, src, src.Bounds(), draw.Over, nil)
	}
	return nil
}

package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrRasterNotReady is returned when a page has been laid out but its bitmap
// has not finished rendering.
var ErrRasterNotReady = errors.New("raster not ready")

// Raster is the native-resolution bitmap behind a page surface.
type Raster interface {
	// Bounds returns the raster size in bitmap pixels.
	Bounds() image.Rectangle

	// ReadRegion returns the pixels inside r. r must lie within Bounds.
	ReadRegion(ctx context.Context, r image.Rectangle) (image.Image, error)
}

// ImageRaster serves pixels from an in-memory image.
type ImageRaster struct {
	img image.Image
}

// NewImageRaster wraps img. The image must not be mutated afterwards.
func NewImageRaster(img image.Image) *ImageRaster {
	return &ImageRaster{img: img}
}

func (r *ImageRaster) Bounds() image.Rectangle {
	b := r.img.Bounds()
	return image.Rect(0, 0, b.Dx(), b.Dy())
}

func (r *ImageRaster) ReadRegion(ctx context.Context, region image.Rectangle) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !region.In(r.Bounds()) {
		return nil, fmt.Errorf("region %v outside raster %v", region, r.Bounds())
	}

	// Rasters are addressed from (0,0); the wrapped image may not be.
	min := r.img.Bounds().Min
	shifted := region.Add(min)
	if sub, ok := r.img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(shifted), nil
	}
	return &offsetImage{Image: r.img, rect: shifted}, nil
}

// Image exposes the wrapped image for previews.
func (r *ImageRaster) Image() image.Image { return r.img }

type offsetImage struct {
	image.Image
	rect image.Rectangle
}

func (o *offsetImage) Bounds() image.Rectangle { return o.rect }

// PendingRaster stands in for a page whose rendering is still in flight.
type PendingRaster struct {
	Width, Height int
}

func (p PendingRaster) Bounds() image.Rectangle { return image.Rect(0, 0, p.Width, p.Height) }

func (p PendingRaster) ReadRegion(context.Context, image.Rectangle) (image.Image, error) {
	return nil, ErrRasterNotReady
}

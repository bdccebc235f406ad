package overlay

import (
	"context"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Layer is one drawable part of the viewport preview.
type Layer interface {
	// ID returns the unique identifier for this layer
	ID() string

	// Z orders layers; lower values draw first.
	Z() int

	// Draw paints the layer onto dst, which is viewport-sized.
	Draw(ctx context.Context, dst *image.RGBA) error
}

var (
	selectionBorder = color.RGBA{R: 59, G: 130, B: 246, A: 255}
	selectionFill   = color.RGBA{R: 191, G: 219, B: 254, A: 255}
	modeTint        = color.RGBA{R: 0, G: 100, B: 255, A: 255}
	labelText       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	backdrop        = color.RGBA{R: 82, G: 86, B: 89, A: 255}
)

// fillRect blends c over r with the given opacity (0..1).
func fillRect(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() || opacity <= 0 {
		return
	}
	if opacity > 1 {
		opacity = 1
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
}

// strokeRect draws a border of the given width inside r.
func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color, width int) {
	if r.Empty() {
		return
	}
	top := image.Rect(r.Min.X, r.Min.Y, r.Max.X, min(r.Min.Y+width, r.Max.Y))
	bottom := image.Rect(r.Min.X, max(r.Max.Y-width, r.Min.Y), r.Max.X, r.Max.Y)
	left := image.Rect(r.Min.X, r.Min.Y, min(r.Min.X+width, r.Max.X), r.Max.Y)
	right := image.Rect(max(r.Max.X-width, r.Min.X), r.Min.Y, r.Max.X, r.Max.Y)
	for _, edge := range []image.Rectangle{top, bottom, left, right} {
		fillRect(dst, edge, c, 1)
	}
}

const (
	labelPadding = 4
	labelHeight  = 13 // basicfont.Face7x13
)

// drawLabel draws text on a solid background with its top-left corner at
// (x, y) and returns the label's bounds.
func drawLabel(dst *image.RGBA, x, y int, text string, bg color.Color) image.Rectangle {
	face := basicfont.Face7x13
	d := &font.Drawer{Src: image.NewUniform(labelText), Face: face}
	width := d.MeasureString(text).Ceil()

	box := image.Rect(x, y, x+width+labelPadding*2, y+labelHeight+labelPadding*2)
	fillRect(dst, box, bg, 1)

	d.Dst = dst
	d.Dot = fixed.Point26_6{
		X: fixed.I(x + labelPadding),
		Y: fixed.I(y + labelPadding + face.Ascent),
	}
	d.DrawString(text)
	return box
}

package viewer

import (
	"math"

	"github.com/bryanchriswhite/PageGrab/internal/document"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
)

const (
	MinZoom  = 0.5
	MaxZoom  = 3.0
	ZoomStep = 0.2

	// DisplayDPI is the screen density page sizes are laid out at.
	DisplayDPI = 96.0
)

// Viewport is the visible window onto the laid-out pages.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollY float64 `json:"scroll_y"`
	Zoom    float64 `json:"zoom"`
}

// ClampZoom limits z to the supported range, rounded to one decimal.
func ClampZoom(z float64) float64 {
	z = math.Round(z*10) / 10
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// layout places pages top to bottom, each horizontally centred, with gap
// pixels above every page.
type layout struct {
	viewport Viewport
	gap      float64
	sizes    []document.Size
}

func (l layout) displaySize(page int) (float64, float64) {
	s := l.sizes[page-1]
	scale := l.viewport.Zoom * DisplayDPI / document.PointsPerInch
	return s.Width * scale, s.Height * scale
}

// contentHeight is the full scrollable height.
func (l layout) contentHeight() float64 {
	total := l.gap
	for i := range l.sizes {
		_, h := l.displaySize(i + 1)
		total += h + l.gap
	}
	return total
}

// bounds returns every page's screen rectangle, indexed by page-1.
func (l layout) bounds() []geom.Rect {
	out := make([]geom.Rect, len(l.sizes))
	top := l.gap - l.viewport.ScrollY
	for i := range l.sizes {
		w, h := l.displaySize(i + 1)
		x := math.Max(0, (l.viewport.Width-w)/2)
		out[i] = geom.Rect{X: x, Y: top, Width: w, Height: h}
		top += h + l.gap
	}
	return out
}

func (l layout) visible(r geom.Rect) bool {
	return r.Bottom() > 0 && r.Y < l.viewport.Height
}

func (l layout) maxScroll() float64 {
	return math.Max(0, l.contentHeight()-l.viewport.Height)
}

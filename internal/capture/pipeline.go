// Package capture maps a screen-space selection onto the page surface under
// it and extracts the matching block of the page's native-resolution bitmap.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
	"github.com/bryanchriswhite/PageGrab/internal/surface"
)

// Policy selects how candidate surfaces are found and ranked.
type Policy string

const (
	// PolicyReferencePoint tests the selection's top-left corner against
	// surface bounds and takes the first visible match.
	PolicyReferencePoint Policy = "reference_point"

	// PolicyMaxOverlap considers every surface the selection overlaps and
	// takes the one with the largest intersection.
	PolicyMaxOverlap Policy = "max_overlap"
)

// ParsePolicy resolves a config policy name. Empty selects the default.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyReferencePoint:
		return PolicyReferencePoint, nil
	case PolicyMaxOverlap:
		return PolicyMaxOverlap, nil
	default:
		return "", fmt.Errorf("unknown capture policy: %s", s)
	}
}

// Result is a finished capture, handed to the consumer as-is.
type Result struct {
	ID                 string         `json:"id"`
	Bitmap             []byte         `json:"-"`
	MediaType          string         `json:"media_type"`
	BitmapRect         geom.PixelRect `json:"coordinates"`
	SourcePageIndex    int            `json:"page"`
	OriginalScreenRect geom.Rect      `json:"selection_rect"`
	CapturedAt         time.Time      `json:"captured_at"`
}

// DataURL renders the bitmap as a data: URL, the payload format the
// extraction service accepts.
func (r *Result) DataURL() string {
	return "data:" + r.MediaType + ";base64," + base64.StdEncoding.EncodeToString(r.Bitmap)
}

// Options configure a Pipeline.
type Options struct {
	Encoder Encoder
	Policy  Policy
	Now     func() time.Time
}

// Pipeline turns screen rectangles into cropped page bitmaps. It holds no
// per-capture state, so concurrent Capture calls are independent.
type Pipeline struct {
	surfaces surface.Querier
	encoder  Encoder
	policy   Policy
	now      func() time.Time
}

// NewPipeline creates a pipeline reading from the given registry
func NewPipeline(surfaces surface.Querier, opts Options) *Pipeline {
	p := &Pipeline{
		surfaces: surfaces,
		encoder:  opts.Encoder,
		policy:   opts.Policy,
		now:      opts.Now,
	}
	if p.encoder == nil {
		p.encoder = PNGEncoder{}
	}
	if p.policy == "" {
		p.policy = PolicyReferencePoint
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Capture extracts the page content under rect.
func (p *Pipeline) Capture(ctx context.Context, rect geom.Rect) (*Result, error) {
	log := logger.WithComponent("capture")

	if rect.Empty() {
		return nil, newError(KindEmptyRegion, nil)
	}

	target, ok := p.selectSurface(rect)
	if !ok {
		log.Debug().
			Float64("x", rect.X).
			Float64("y", rect.Y).
			Msg("No surface under selection")
		return nil, newError(KindNoTargetSurface, nil)
	}

	region, err := MapToBitmap(rect, target)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("page", target.PageIndex).
		Bool("visible", target.Visible).
		Int("bitmap_x", region.X).
		Int("bitmap_y", region.Y).
		Int("bitmap_width", region.Width).
		Int("bitmap_height", region.Height).
		Msg("Selection mapped to bitmap")

	img, err := extract(ctx, target.Raster, region.Rectangle())
	if err != nil {
		log.Warn().Err(err).Int("page", target.PageIndex).Msg("Pixel extraction failed")
		return nil, newError(KindExtractionFailed, err)
	}

	var buf bytes.Buffer
	if err := p.encoder.Encode(&buf, img); err != nil {
		return nil, newError(KindExtractionFailed, fmt.Errorf("encode %s: %w", p.encoder.MediaType(), err))
	}

	res := &Result{
		ID:                 uuid.NewString(),
		Bitmap:             buf.Bytes(),
		MediaType:          p.encoder.MediaType(),
		BitmapRect:         region,
		SourcePageIndex:    target.PageIndex,
		OriginalScreenRect: rect,
		CapturedAt:         p.now(),
	}

	log.Info().
		Str("id", res.ID).
		Int("page", res.SourcePageIndex).
		Int("bytes", len(res.Bitmap)).
		Msg("Region captured")
	return res, nil
}

// selectSurface applies the disambiguation policy. Candidates arrive from the
// registry already ordered visible-first, then by registration.
func (p *Pipeline) selectSurface(rect geom.Rect) (surface.Descriptor, bool) {
	if p.policy == PolicyMaxOverlap {
		candidates := p.surfaces.QueryRect(rect)
		if len(candidates) == 0 {
			return surface.Descriptor{}, false
		}
		best := candidates[0]
		bestArea := rect.Intersect(best.ScreenBounds).Area()
		for _, c := range candidates[1:] {
			if area := rect.Intersect(c.ScreenBounds).Area(); area > bestArea {
				best, bestArea = c, area
			}
		}
		return best, true
	}

	candidates := p.surfaces.QueryPoint(rect.TopLeft())
	if len(candidates) == 0 {
		return surface.Descriptor{}, false
	}
	return candidates[0], true
}

// MapToBitmap converts a screen rectangle into the bitmap space of d. The
// origin is clamped into the bitmap and the size is then cut at the right
// and bottom edges.
func MapToBitmap(rect geom.Rect, d surface.Descriptor) (geom.PixelRect, error) {
	bounds := d.ScreenBounds
	if bounds.Width <= 0 || bounds.Height <= 0 || d.BitmapWidth <= 0 || d.BitmapHeight <= 0 {
		return geom.PixelRect{}, newError(KindDegenerateRegion,
			fmt.Errorf("page %d has no displayable area", d.PageIndex))
	}
	if math.IsNaN(rect.X) || math.IsNaN(rect.Y) || math.IsNaN(rect.Width) || math.IsNaN(rect.Height) {
		return geom.PixelRect{}, newError(KindDegenerateRegion, errors.New("selection is not a number"))
	}

	scaleX := float64(d.BitmapWidth) / bounds.Width
	scaleY := float64(d.BitmapHeight) / bounds.Height

	localX := rect.X - bounds.X
	localY := rect.Y - bounds.Y

	// Clamp in float space so huge selections cannot overflow int.
	x := clampPixels(math.Round(localX*scaleX), d.BitmapWidth)
	y := clampPixels(math.Round(localY*scaleY), d.BitmapHeight)
	w := clampPixels(math.Round(rect.Width*scaleX), d.BitmapWidth-x)
	h := clampPixels(math.Round(rect.Height*scaleY), d.BitmapHeight-y)

	if w <= 0 || h <= 0 {
		return geom.PixelRect{}, newError(KindDegenerateRegion, nil)
	}
	return geom.PixelRect{X: x, Y: y, Width: w, Height: h}, nil
}

// clampPixels limits v to [0, limit] before converting it.
func clampPixels(v float64, limit int) int {
	return int(math.Min(math.Max(v, 0), float64(limit)))
}

func extract(ctx context.Context, raster surface.Raster, r image.Rectangle) (img *image.RGBA, err error) {
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("raster read panicked: %v", p)
		}
	}()

	if raster == nil {
		return nil, errors.New("surface has no raster attached")
	}
	if !r.In(raster.Bounds()) {
		return nil, fmt.Errorf("region %v exceeds raster %v", r, raster.Bounds())
	}

	src, err := raster.ReadRegion(ctx, r)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

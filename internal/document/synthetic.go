package document

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
)

// Synthetic is an in-memory document whose pages are generated on demand.
// Pixel (x, y) of page p is RGBA{x%256, y%256, p*37%256, 255}.
type Synthetic struct {
	Pages []Size

	// BeforeRender, when set, runs before each page is produced. Returning
	// an error fails that page.
	BeforeRender func(ctx context.Context, page int) error

	mu     sync.Mutex
	closed bool
}

// NewSynthetic creates n pages of the given size in points.
func NewSynthetic(n int, size Size) *Synthetic {
	pages := make([]Size, n)
	for i := range pages {
		pages[i] = size
	}
	return &Synthetic{Pages: pages}
}

func (s *Synthetic) NumPages() int { return len(s.Pages) }

func (s *Synthetic) PageSize(page int) (Size, error) {
	if err := checkPage(page, len(s.Pages)); err != nil {
		return Size{}, err
	}
	return s.Pages[page-1], nil
}

func (s *Synthetic) Render(ctx context.Context, page int, dpi float64) (*image.RGBA, error) {
	if err := checkPage(page, len(s.Pages)); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrDocumentClosed
	}
	if s.BeforeRender != nil {
		if err := s.BeforeRender(ctx, page); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := s.Pages[page-1]
	w := int(math.Round(size.Width * dpi / PointsPerInch))
	h := int(math.Round(size.Height * dpi / PointsPerInch))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	blue := uint8(page * 37 % 256)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: blue, A: 255})
		}
	}
	return img, nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Synthetic) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

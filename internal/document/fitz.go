package document

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// FitzDocument renders PDF pages with MuPDF.
type FitzDocument struct {
	path  string
	mu    sync.RWMutex
	doc   *fitz.Document
	pages int
}

// OpenPDF opens the PDF at path.
func OpenPDF(path string) (*FitzDocument, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}

	pages := doc.NumPage()
	if pages == 0 {
		doc.Close()
		return nil, ErrNoPages
	}

	logger.WithComponent("document").Info().
		Str("path", path).
		Int("pages", pages).
		Msg("Opened PDF")

	return &FitzDocument{path: path, doc: doc, pages: pages}, nil
}

// Path returns the file the document was opened from.
func (d *FitzDocument) Path() string { return d.path }

func (d *FitzDocument) NumPages() int { return d.pages }

// PageSize returns the page's bounds at 72 DPI, which are its size in points.
func (d *FitzDocument) PageSize(page int) (Size, error) {
	if err := checkPage(page, d.pages); err != nil {
		return Size{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.doc == nil {
		return Size{}, ErrDocumentClosed
	}

	bounds, err := d.doc.Bound(page - 1)
	if err != nil {
		return Size{}, fmt.Errorf("failed to read bounds of page %d: %w", page, err)
	}
	return Size{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}, nil
}

// Render rasterizes a page at dpi. go-fitz serializes access to the MuPDF
// context internally, so concurrent calls queue rather than race.
func (d *FitzDocument) Render(ctx context.Context, page int, dpi float64) (*image.RGBA, error) {
	if err := checkPage(page, d.pages); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.doc == nil {
		return nil, ErrDocumentClosed
	}

	img, err := d.doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

func (d *FitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}

// Package document opens paged documents and rasterizes their pages.
package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
)

// PointsPerInch is the PDF user-space unit.
const PointsPerInch = 72.0

var (
	ErrNoPages         = errors.New("document has no pages")
	ErrPageOutOfRange  = errors.New("page index out of range")
	ErrDocumentClosed  = errors.New("document is closed")
	ErrUnsupportedFile = errors.New("unsupported document type")
)

// Size is a page size in points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document is a paged document. Page indexes are 1-based. Implementations
// must allow concurrent Render calls.
type Document interface {
	NumPages() int
	PageSize(page int) (Size, error)
	Render(ctx context.Context, page int, dpi float64) (*image.RGBA, error)
	Close() error
}

// ValidatePath checks that path names a readable PDF file.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrUnsupportedFile)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnsupportedFile, path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return fmt.Errorf("%w: extension %q", ErrUnsupportedFile, ext)
	}
	return nil
}

func checkPage(page, total int) error {
	if page < 1 || page > total {
		return fmt.Errorf("%w: %d not in 1..%d", ErrPageOutOfRange, page, total)
	}
	return nil
}

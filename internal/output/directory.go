package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// Sidecar is the metadata written next to each saved bitmap.
type Sidecar struct {
	ID            string         `json:"id"`
	File          string         `json:"file"`
	MediaType     string         `json:"media_type"`
	Page          int            `json:"page"`
	Coordinates   geom.PixelRect `json:"coordinates"`
	SelectionRect geom.Rect      `json:"selection_rect"`
	CapturedAt    time.Time      `json:"captured_at"`
}

// DirectorySink saves each capture as an image file plus a JSON sidecar.
type DirectorySink struct {
	dir string
}

// NewDirectorySink creates dir if needed.
func NewDirectorySink(dir string) (*DirectorySink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &DirectorySink{dir: dir}, nil
}

func (s *DirectorySink) Name() string { return "directory" }

// Dir returns the target directory.
func (s *DirectorySink) Dir() string { return s.dir }

func (s *DirectorySink) Write(ctx context.Context, res *capture.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base := fmt.Sprintf("%s_p%03d_%s",
		res.CapturedAt.UTC().Format("20060102T150405.000"),
		res.SourcePageIndex,
		shortID(res.ID),
	)
	imageName := base + extensionFor(res.MediaType)

	if err := os.WriteFile(filepath.Join(s.dir, imageName), res.Bitmap, 0o644); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}

	meta, err := json.MarshalIndent(Sidecar{
		ID:            res.ID,
		File:          imageName,
		MediaType:     res.MediaType,
		Page:          res.SourcePageIndex,
		Coordinates:   res.BitmapRect,
		SelectionRect: res.OriginalScreenRect,
		CapturedAt:    res.CapturedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, base+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}

	logger.WithComponent("output").Info().
		Str("file", imageName).
		Int("page", res.SourcePageIndex).
		Int("bytes", len(res.Bitmap)).
		Msg("Capture saved")
	return nil
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	default:
		return ".png"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

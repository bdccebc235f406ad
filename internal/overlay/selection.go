package overlay

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/bryanchriswhite/PageGrab/internal/selection"
)

const (
	borderWidth = 2
	labelOffset = 32
)

// SelectionLayer draws the selection-mode tint, the live rectangle and its
// size label.
type SelectionLayer struct {
	snapshot func() selection.Snapshot
}

// NewSelectionLayer draws whatever snapshot returns at draw time.
func NewSelectionLayer(snapshot func() selection.Snapshot) *SelectionLayer {
	return &SelectionLayer{snapshot: snapshot}
}

func (l *SelectionLayer) ID() string { return "selection" }

func (l *SelectionLayer) Z() int { return 100 }

func (l *SelectionLayer) Draw(_ context.Context, dst *image.RGBA) error {
	snap := l.snapshot()
	if !snap.Active && !snap.HasRect {
		return nil
	}

	if snap.Active {
		fillRect(dst, dst.Bounds(), modeTint, 0.15)
		drawLabel(dst, 16, 16, "Selection mode active", selectionBorder)
	}

	if !snap.HasRect {
		return nil
	}

	r := snap.Rect
	box := image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.Right())),
		int(math.Round(r.Bottom())),
	)
	fillRect(dst, box, selectionFill, 0.3)
	strokeRect(dst, box, selectionBorder, borderWidth)

	labelY := box.Min.Y - labelOffset
	if labelY < 0 {
		labelY = box.Max.Y + labelPadding
	}
	drawLabel(dst, box.Min.X, labelY, SizeLabel(r.Width, r.Height), selectionBorder)
	return nil
}

// SizeLabel formats a selection size for display.
func SizeLabel(width, height float64) string {
	return fmt.Sprintf("%.0f×%.0fpx", width, height)
}

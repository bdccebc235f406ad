package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/PageGrab/internal/app"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
)

var captureCmd = &cobra.Command{
	Use:   "capture PDF",
	Short: "Capture a screen rectangle from a rendered PDF",
	Long: `Open a PDF, wait for its pages to render and capture the page pixels
under a rectangle given in viewport coordinates. The capture is written to
the configured output directory, and to --out when given. Its metadata is
printed as JSON.`,
	Example: `  # Capture a 400x200 block near the top of the first page
  pagegrab capture report.pdf --x 300 --y 40 --width 400 --height 200

  # Scroll down first and save as a specific file
  pagegrab capture report.pdf --scroll 1200 --x 300 --y 40 --width 400 --height 200 --out table.png`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var (
	captureRect   geom.Rect
	captureScroll float64
	captureZoom   float64
	captureOut    string
)

func init() {
	rootCmd.AddCommand(captureCmd)

	f := captureCmd.Flags()
	f.Float64Var(&captureRect.X, "x", 0, "left edge in viewport pixels")
	f.Float64Var(&captureRect.Y, "y", 0, "top edge in viewport pixels")
	f.Float64Var(&captureRect.Width, "width", 0, "selection width in viewport pixels")
	f.Float64Var(&captureRect.Height, "height", 0, "selection height in viewport pixels")
	f.Float64Var(&captureScroll, "scroll", 0, "vertical scroll offset before capturing")
	f.Float64Var(&captureZoom, "zoom", 0, "zoom level before capturing (default from config)")
	f.StringVarP(&captureOut, "out", "o", "", "also write the bitmap to this file")
	captureCmd.MarkFlagRequired("width")
	captureCmd.MarkFlagRequired("height")
}

func runCapture(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(*cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := openAndWait(ctx, a, args[0]); err != nil {
		return err
	}
	if captureZoom > 0 {
		a.Viewer.SetZoom(captureZoom)
	}
	if captureScroll > 0 {
		a.Viewer.ScrollTo(captureScroll)
	}

	res, err := a.Capture(ctx, captureRect)
	if err != nil {
		return err
	}

	if captureOut != "" {
		if err := os.WriteFile(captureOut, res.Bitmap, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", captureOut, err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

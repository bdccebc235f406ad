package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/PageGrab/internal/app"
	"github.com/bryanchriswhite/PageGrab/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render PDF",
	Short: "Render every page of a PDF and report progress",
	Long: `Render every page of a PDF the way the viewer does and print progress
until all pages are ready or the render timeout passes.`,
	Example: `  # Render with the configured timeout
  pagegrab render report.pdf

  # Show per-page layout once rendering settles
  pagegrab render report.pdf --pages`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var showPages bool

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().BoolVar(&showPages, "pages", false, "list page layout after rendering")
}

func runRender(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	unsubscribe := a.Barrier.OnProgress(func(p render.Progress) {
		fmt.Fprintln(out, p.Status)
	})
	defer unsubscribe()

	outcome, err := openAndWait(ctx, a, args[0])
	if err != nil {
		return err
	}

	if outcome.Degraded {
		fmt.Fprintf(out, "Timed out after %s with %d/%d pages\n", outcome.Elapsed, outcome.CompletedCount, outcome.TotalPages)
	} else {
		fmt.Fprintf(out, "Rendered %d pages in %s\n", outcome.TotalPages, outcome.Elapsed)
	}

	if showPages {
		pages, err := a.Viewer.Pages()
		if err != nil {
			return err
		}
		for _, p := range pages {
			state := "ready"
			if p.Error != "" {
				state = "failed: " + p.Error
			} else if !p.Rendered {
				state = "pending"
			}
			fmt.Fprintf(out, "page %d  %.0fx%.0fpt  at (%.0f,%.0f) %.0fx%.0f  %s\n",
				p.Index, p.Size.Width, p.Size.Height,
				p.ScreenBounds.X, p.ScreenBounds.Y, p.ScreenBounds.Width, p.ScreenBounds.Height,
				state)
		}
	}
	return nil
}

// openAndWait opens path and blocks until its render session settles.
func openAndWait(ctx context.Context, a *app.App, path string) (render.Outcome, error) {
	session, err := a.Viewer.OpenFile(ctx, path)
	if err != nil {
		return render.Outcome{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return session.Wait(ctx)
}

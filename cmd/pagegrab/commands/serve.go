package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/PageGrab/internal/api"
	"github.com/bryanchriswhite/PageGrab/internal/app"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve [PDF]",
	Short: "Start the PageGrab server",
	Long: `Start the PageGrab HTTP server.

The server exposes the document viewer, selection mode and region capture
over a REST API, streams render progress and captures over WebSockets and
serves a live MJPEG preview of the viewport. A PDF given as argument is
opened at startup.`,
	Example: `  # Start server on default port (8080)
  pagegrab serve

  # Open a document right away on a custom port
  pagegrab serve report.pdf --port 9090

  # Start with debug logging
  pagegrab serve --log-level debug`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var selectionOnStart bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&selectionOnStart, "select", false, "start with selection mode active")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	a, err := app.New(*cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Preview.Start(ctx); err != nil {
		return fmt.Errorf("failed to start preview stream: %w", err)
	}

	if len(args) == 1 {
		session, err := a.Viewer.OpenFile(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		log.Info().Str("path", args[0]).Int("pages", session.TotalPages()).Msg("Document opened")
	}
	a.Selection.SetActive(selectionOnStart)

	server := api.NewServer(a, configMgr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("web_ui", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Str("preview", fmt.Sprintf("http://localhost:%d/api/viewport/stream", cfg.ServerPort)).
		Msg("PageGrab is running, press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

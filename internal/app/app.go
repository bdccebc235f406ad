// Package app wires the document viewer, capture pipeline, selection
// controller and outputs from a configuration.
package app

import (
	"context"
	"image"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
	"github.com/bryanchriswhite/PageGrab/internal/clock"
	"github.com/bryanchriswhite/PageGrab/internal/config"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
	"github.com/bryanchriswhite/PageGrab/internal/output"
	"github.com/bryanchriswhite/PageGrab/internal/overlay"
	"github.com/bryanchriswhite/PageGrab/internal/render"
	"github.com/bryanchriswhite/PageGrab/internal/selection"
	"github.com/bryanchriswhite/PageGrab/internal/surface"
	"github.com/bryanchriswhite/PageGrab/internal/viewer"
)

// App is the assembled component graph.
type App struct {
	Config    config.Config
	Registry  *surface.Registry
	Barrier   *render.Barrier
	Viewer    *viewer.Viewer
	Pipeline  *capture.Pipeline
	Selection *selection.Controller
	Overlay   *overlay.Manager
	Preview   *output.MJPEGOutput
	Captures  *output.Broadcaster
	Sink      output.Sink
}

// Option adjusts construction.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock drives the render timeout and selection clear delay from c.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New builds the application from cfg.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}

	encoder, err := capture.EncoderFor(cfg.Capture.Format, cfg.Capture.JPEGQuality)
	if err != nil {
		return nil, err
	}
	policy, err := capture.ParsePolicy(cfg.Capture.Policy)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Registry: surface.NewRegistry(),
		Captures: output.NewBroadcaster(),
	}
	a.Barrier = render.NewBarrier(render.Options{Timeout: cfg.Render.Timeout, Clock: o.clock})
	a.Viewer = viewer.New(a.Registry, a.Barrier, viewer.Options{
		DPI:            cfg.Render.DPI,
		Workers:        cfg.Render.Workers,
		Zoom:           cfg.Render.Zoom,
		PageGap:        cfg.Render.PageGapPx,
		ViewportWidth:  cfg.Render.ViewportWidth,
		ViewportHeight: cfg.Render.ViewportHeight,
	})
	a.Pipeline = capture.NewPipeline(a.Registry, capture.Options{
		Encoder: encoder,
		Policy:  policy,
		Now:     o.clock.Now,
	})

	sinks := output.MultiSink{a.Captures}
	if cfg.Capture.OutputDir != "" {
		dir, err := output.NewDirectorySink(cfg.Capture.OutputDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dir)
	}
	a.Sink = sinks

	a.Selection = selection.NewController(a.Pipeline, selection.Options{
		MinSize:    cfg.Capture.MinSelectionPx,
		ClearDelay: cfg.Capture.ClearDelay,
		Clock:      o.clock,
		OnResult:   a.deliver,
	})

	a.Overlay = overlay.NewManager(
		overlay.NewPagesLayer(a.Registry.Snapshot),
		overlay.NewSelectionLayer(a.Selection.Snapshot),
	)
	a.Preview = output.NewMJPEGOutput(output.MJPEGConfig{
		FPS:     cfg.Preview.FPS,
		Quality: cfg.Preview.JPEGQuality,
	}, a.PreviewFrame)

	return a, nil
}

// Capture runs the pipeline for rect and hands the result to the sinks.
// Sink failures are logged; the capture itself still succeeds.
func (a *App) Capture(ctx context.Context, rect geom.Rect) (*capture.Result, error) {
	res, err := a.Pipeline.Capture(ctx, rect)
	a.deliver(rect, res, err)
	return res, err
}

func (a *App) deliver(_ geom.Rect, res *capture.Result, err error) {
	if err != nil || res == nil {
		return
	}
	if err := a.Sink.Write(context.Background(), res); err != nil {
		logger.WithComponent("app").Warn().Err(err).Str("capture", res.ID).Msg("Failed to deliver capture")
	}
}

// PreviewFrame renders the viewport as it currently looks.
func (a *App) PreviewFrame(ctx context.Context) (*image.RGBA, error) {
	vp := a.Viewer.Viewport()
	return a.Overlay.Render(ctx, int(vp.Width), int(vp.Height))
}

// Close stops background work and releases the document.
func (a *App) Close() {
	a.Selection.Close()
	if err := a.Preview.Stop(); err != nil {
		logger.WithComponent("app").Warn().Err(err).Msg("Failed to stop preview stream")
	}
	a.Viewer.Close()
	a.Captures.Close()
}

// Package viewer hosts the open document: it renders pages in the
// background, lays them out on screen and keeps the surface registry in step
// with the layout.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bryanchriswhite/PageGrab/internal/document"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
	"github.com/bryanchriswhite/PageGrab/internal/render"
	"github.com/bryanchriswhite/PageGrab/internal/surface"
)

// ErrNoDocument is returned when an operation needs an open document.
var ErrNoDocument = errors.New("no document open")

// Options configure a Viewer.
type Options struct {
	DPI            float64
	Workers        int
	Zoom           float64
	PageGap        float64
	ViewportWidth  float64
	ViewportHeight float64
}

func (o *Options) applyDefaults() {
	if o.DPI <= 0 {
		o.DPI = 144
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Zoom <= 0 {
		o.Zoom = 1
	}
	if o.PageGap < 0 {
		o.PageGap = 0
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1280
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 900
	}
}

// PageInfo describes one page of the open document.
type PageInfo struct {
	Index        int           `json:"page"`
	Size         document.Size `json:"size_pt"`
	ScreenBounds geom.Rect     `json:"screen_bounds"`
	Visible      bool          `json:"visible"`
	Rendered     bool          `json:"rendered"`
	Error        string        `json:"error,omitempty"`
}

type pageState struct {
	raster *surface.ImageRaster
	err    error
}

// Viewer owns the open document and its render loop.
type Viewer struct {
	registry *surface.Registry
	barrier  *render.Barrier
	opts     Options

	mu         sync.Mutex
	doc        document.Document
	sizes      []document.Size
	pages      []pageState
	viewport   Viewport
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a viewer with no document.
func New(registry *surface.Registry, barrier *render.Barrier, opts Options) *Viewer {
	opts.applyDefaults()
	return &Viewer{
		registry: registry,
		barrier:  barrier,
		opts:     opts,
		viewport: Viewport{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
			Zoom:   ClampZoom(opts.Zoom),
		},
	}
}

// OpenFile opens the PDF at path.
func (v *Viewer) OpenFile(ctx context.Context, path string) (*render.Session, error) {
	doc, err := document.OpenPDF(path)
	if err != nil {
		return nil, err
	}
	session, err := v.Open(ctx, doc)
	if err != nil {
		doc.Close()
		return nil, err
	}
	return session, nil
}

// Open replaces the current document with doc. Prior surfaces, progress and
// in-flight renders are discarded before the new pages start rendering. The
// viewer takes ownership of doc.
func (v *Viewer) Open(ctx context.Context, doc document.Document) (*render.Session, error) {
	n := doc.NumPages()
	sizes := make([]document.Size, n)
	for i := range sizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		size, err := doc.PageSize(i + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to read page sizes: %w", err)
		}
		sizes[i] = size
	}

	v.mu.Lock()
	prevDoc, prevDone := v.detachLocked()

	v.doc = doc
	v.sizes = sizes
	v.pages = make([]pageState, n)
	v.viewport.ScrollY = 0
	gen := v.generation

	session := v.barrier.BeginSession(n)

	renderCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	v.cancel = cancel
	v.done = done
	go v.renderAll(renderCtx, gen, doc, session, done)
	v.mu.Unlock()

	closeDetached(prevDoc, prevDone)

	logger.WithComponent("viewer").Info().
		Int("pages", n).
		Str("session", session.ID()).
		Float64("dpi", v.opts.DPI).
		Int("workers", v.opts.Workers).
		Msg("Document opened")

	return session, nil
}

// Close cancels rendering and forgets the document.
func (v *Viewer) Close() {
	v.mu.Lock()
	prevDoc, prevDone := v.detachLocked()
	v.doc = nil
	v.sizes = nil
	v.pages = nil
	v.barrier.Cancel()
	v.mu.Unlock()

	closeDetached(prevDoc, prevDone)
}

// detachLocked invalidates everything tied to the current document and
// returns what still needs closing once its render loop stops.
func (v *Viewer) detachLocked() (document.Document, chan struct{}) {
	v.generation++
	v.registry.Reset()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	doc, done := v.doc, v.done
	v.done = nil
	return doc, done
}

func closeDetached(doc document.Document, done chan struct{}) {
	if done != nil {
		<-done
	}
	if doc != nil {
		if err := doc.Close(); err != nil {
			logger.WithComponent("viewer").Warn().Err(err).Msg("Failed to close document")
		}
	}
}

func (v *Viewer) renderAll(ctx context.Context, gen uint64, doc document.Document, session *render.Session, done chan struct{}) {
	defer close(done)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)

	for page := 1; page <= doc.NumPages(); page++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return v.renderPage(gctx, gen, doc, session, page)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithComponent("viewer").Warn().Err(err).Msg("Render loop stopped")
	}
}

// renderPage renders one page. Page failures are logged and leave the page
// unregistered; only cancellation stops the loop.
func (v *Viewer) renderPage(ctx context.Context, gen uint64, doc document.Document, session *render.Session, page int) error {
	log := logger.WithComponent("viewer")

	img, err := doc.Render(ctx, page, v.opts.DPI)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Int("page", page).Msg("Failed to render page")
		v.mu.Lock()
		if gen == v.generation {
			v.pages[page-1].err = err
		}
		v.mu.Unlock()
		return nil
	}

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		log.Debug().Int("page", page).Msg("Discarding page from superseded document")
		return nil
	}
	v.pages[page-1] = pageState{raster: surface.NewImageRaster(img)}
	l := v.layoutLocked()
	v.registry.Register(v.descriptorLocked(l, l.bounds(), page))
	v.mu.Unlock()

	if err := session.NotifyPageRendered(page); err != nil && !errors.Is(err, render.ErrInvalidSession) {
		log.Warn().Err(err).Int("page", page).Msg("Failed to record rendered page")
	}
	return nil
}

func (v *Viewer) layoutLocked() layout {
	return layout{viewport: v.viewport, gap: v.opts.PageGap, sizes: v.sizes}
}

func (v *Viewer) descriptorLocked(l layout, bounds []geom.Rect, page int) surface.Descriptor {
	raster := v.pages[page-1].raster
	b := raster.Bounds()
	rect := bounds[page-1]
	return surface.Descriptor{
		PageIndex:    page,
		ScreenBounds: rect,
		BitmapWidth:  b.Dx(),
		BitmapHeight: b.Dy(),
		Visible:      l.visible(rect),
		Raster:       raster,
	}
}

// relayoutLocked re-registers every rendered page at its new screen bounds.
func (v *Viewer) relayoutLocked() {
	l := v.layoutLocked()
	bounds := l.bounds()
	for i, p := range v.pages {
		if p.raster == nil {
			continue
		}
		v.registry.Register(v.descriptorLocked(l, bounds, i+1))
	}
}

// Viewport returns the current viewport.
func (v *Viewer) Viewport() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport
}

// SetViewport applies zoom, size and scroll together.
func (v *Viewer) SetViewport(vp Viewport) Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()

	if vp.Width > 0 {
		v.viewport.Width = vp.Width
	}
	if vp.Height > 0 {
		v.viewport.Height = vp.Height
	}
	if vp.Zoom > 0 {
		v.viewport.Zoom = ClampZoom(vp.Zoom)
	}
	v.viewport.ScrollY = vp.ScrollY
	return v.applyLocked()
}

// SetZoom sets the zoom factor, clamped to the supported range.
func (v *Viewer) SetZoom(z float64) Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewport.Zoom = ClampZoom(z)
	return v.applyLocked()
}

func (v *Viewer) ZoomIn() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewport.Zoom = ClampZoom(v.viewport.Zoom + ZoomStep)
	return v.applyLocked()
}

func (v *Viewer) ZoomOut() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewport.Zoom = ClampZoom(v.viewport.Zoom - ZoomStep)
	return v.applyLocked()
}

// ScrollTo scrolls so y is at the top of the viewport.
func (v *Viewer) ScrollTo(y float64) Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewport.ScrollY = y
	return v.applyLocked()
}

// Resize changes the viewport size.
func (v *Viewer) Resize(width, height float64) Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	if width > 0 {
		v.viewport.Width = width
	}
	if height > 0 {
		v.viewport.Height = height
	}
	return v.applyLocked()
}

func (v *Viewer) applyLocked() Viewport {
	l := v.layoutLocked()
	limit := l.maxScroll()
	if v.viewport.ScrollY > limit {
		v.viewport.ScrollY = limit
	}
	if v.viewport.ScrollY < 0 {
		v.viewport.ScrollY = 0
	}
	v.relayoutLocked()

	logger.WithComponent("viewer").Debug().
		Float64("zoom", v.viewport.Zoom).
		Float64("scroll_y", v.viewport.ScrollY).
		Float64("width", v.viewport.Width).
		Float64("height", v.viewport.Height).
		Msg("Layout updated")
	return v.viewport
}

// Pages describes every page of the open document, rendered or not.
func (v *Viewer) Pages() ([]PageInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.doc == nil {
		return nil, ErrNoDocument
	}

	l := v.layoutLocked()
	bounds := l.bounds()
	out := make([]PageInfo, len(v.sizes))
	for i := range v.sizes {
		out[i] = PageInfo{
			Index:        i + 1,
			Size:         v.sizes[i],
			ScreenBounds: bounds[i],
			Visible:      l.visible(bounds[i]),
			Rendered:     v.pages[i].raster != nil,
		}
		if err := v.pages[i].err; err != nil {
			out[i].Error = err.Error()
		}
	}
	return out, nil
}

// HasDocument reports whether a document is open.
func (v *Viewer) HasDocument() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc != nil
}

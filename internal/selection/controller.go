package selection

import (
	"context"
	"sync"
	"time"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
	"github.com/bryanchriswhite/PageGrab/internal/clock"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// DefaultClearDelay is how long a captured rectangle stays on screen.
const DefaultClearDelay = 500 * time.Millisecond

// Capturer performs the capture for a released selection.
type Capturer interface {
	Capture(ctx context.Context, rect geom.Rect) (*capture.Result, error)
}

// ResultHandler receives every finished capture. It runs on the capture's
// goroutine.
type ResultHandler func(rect geom.Rect, res *capture.Result, err error)

// Options configure a Controller.
type Options struct {
	MinSize    float64
	ClearDelay time.Duration
	Clock      clock.Clock
	OnResult   ResultHandler
}

// Snapshot is the controller state a view draws from.
type Snapshot struct {
	Active          bool      `json:"active"`
	State           string    `json:"state"`
	Rect            geom.Rect `json:"rect"`
	HasRect         bool      `json:"has_rect"`
	PendingCaptures int       `json:"pending_captures"`
}

// Controller feeds pointer events through the drag machine and runs
// captures for accepted selections in the background.
type Controller struct {
	capturer Capturer
	opts     Options

	mu       sync.Mutex
	machine  Machine
	active   bool
	clearGen uint64
	pending  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates an inactive controller.
func NewController(capturer Capturer, opts Options) *Controller {
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = DefaultClearDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		capturer: capturer,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetActive turns selection mode on or off. Turning it off drops any drag
// in progress.
func (c *Controller) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == active {
		return
	}
	c.active = active
	if !active {
		c.clearGen++
		c.machine = Machine{}
	}

	logger.WithComponent("selection").Info().Bool("active", active).Msg("Selection mode changed")
}

// Active reports whether selection mode is on.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Handle applies a pointer event and returns the action it produced.
func (c *Controller) Handle(ev Event) Action {
	c.mu.Lock()
	next, action := Transition(c.machine, ev, Rules{Active: c.active, MinSize: c.opts.MinSize})
	c.machine = next

	switch action {
	case ActionBegin:
		// A new drag owns the display; older pending clears must not touch it.
		c.clearGen++
	case ActionCapture:
		c.clearGen++
		gen := c.clearGen
		c.opts.Clock.AfterFunc(c.opts.ClearDelay, func() { c.clearDisplayed(gen) })
		c.pending++
		c.wg.Add(1)
		go c.runCapture(next.Rect)
	}
	c.mu.Unlock()

	log := logger.WithComponent("selection")
	switch action {
	case ActionCapture:
		log.Info().
			Float64("x", next.Rect.X).
			Float64("y", next.Rect.Y).
			Float64("width", next.Rect.Width).
			Float64("height", next.Rect.Height).
			Msg("Selection accepted")
	case ActionDiscard:
		log.Debug().Msg("Selection below minimum size, discarded")
	}

	return action
}

// Snapshot returns the current state for drawing.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Active:          c.active,
		State:           c.machine.State.String(),
		Rect:            c.machine.Rect,
		HasRect:         c.machine.State == Dragging || !c.machine.Rect.Empty(),
		PendingCaptures: c.pending,
	}
}

// Wait blocks until every in-flight capture has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight captures and waits for them.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) clearDisplayed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.clearGen || c.machine.State != Idle {
		return
	}
	c.machine.Rect = geom.Rect{}
}

func (c *Controller) runCapture(rect geom.Rect) {
	defer c.wg.Done()
	log := logger.WithComponent("selection")

	res, err := c.capturer.Capture(c.ctx, rect)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(capture.KindOf(err))).Msg("Capture failed")
	}

	c.mu.Lock()
	c.pending--
	c.mu.Unlock()

	if c.opts.OnResult != nil {
		c.opts.OnResult(rect, res, err)
	}
}

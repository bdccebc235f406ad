package selection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
	"github.com/bryanchriswhite/PageGrab/internal/clock"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
)

var rules = Rules{Active: true, MinSize: DefaultMinSize}

func ev(t EventType, x, y float64) Event {
	return Event{Type: t, Point: geom.Point{X: x, Y: y}}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name       string
		start      Machine
		event      Event
		rules      Rules
		wantState  State
		wantAction Action
		wantRect   geom.Rect
	}{
		{
			name:       "down starts drag at zero size",
			event:      ev(EventDown, 10, 20),
			rules:      rules,
			wantState:  Dragging,
			wantAction: ActionBegin,
			wantRect:   geom.Rect{X: 10, Y: 20},
		},
		{
			name:       "move while dragging spans anchor and point",
			start:      Machine{State: Dragging, Anchor: geom.Point{X: 100, Y: 100}},
			event:      ev(EventMove, 40, 160),
			rules:      rules,
			wantState:  Dragging,
			wantAction: ActionUpdate,
			wantRect:   geom.Rect{X: 40, Y: 100, Width: 60, Height: 60},
		},
		{
			name:       "up above minimum captures",
			start:      Machine{State: Dragging, Anchor: geom.Point{X: 0, Y: 0}},
			event:      ev(EventUp, 21, 21),
			rules:      rules,
			wantState:  Idle,
			wantAction: ActionCapture,
			wantRect:   geom.Rect{Width: 21, Height: 21},
		},
		{
			name:       "up at exactly minimum discards",
			start:      Machine{State: Dragging, Anchor: geom.Point{X: 0, Y: 0}},
			event:      ev(EventUp, 20, 200),
			rules:      rules,
			wantState:  Idle,
			wantAction: ActionDiscard,
		},
		{
			name:       "move while idle is ignored",
			event:      ev(EventMove, 5, 5),
			rules:      rules,
			wantState:  Idle,
			wantAction: ActionNone,
		},
		{
			name:       "up while idle is ignored",
			event:      ev(EventUp, 5, 5),
			rules:      rules,
			wantState:  Idle,
			wantAction: ActionNone,
		},
		{
			name:       "inactive ignores down",
			event:      ev(EventDown, 5, 5),
			rules:      Rules{MinSize: DefaultMinSize},
			wantState:  Idle,
			wantAction: ActionNone,
		},
		{
			name:       "down while dragging restarts",
			start:      Machine{State: Dragging, Anchor: geom.Point{X: 1, Y: 1}, Rect: geom.Rect{X: 1, Y: 1, Width: 50, Height: 50}},
			event:      ev(EventDown, 300, 300),
			rules:      rules,
			wantState:  Dragging,
			wantAction: ActionBegin,
			wantRect:   geom.Rect{X: 300, Y: 300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, action := Transition(tt.start, tt.event, tt.rules)
			assert.Equal(t, tt.wantState, next.State)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantRect, next.Rect)
		})
	}
}

func TestParseEventType(t *testing.T) {
	got, err := ParseEventType("move")
	require.NoError(t, err)
	assert.Equal(t, EventMove, got)

	_, err = ParseEventType("click")
	assert.Error(t, err)
}

type recordingCapturer struct {
	mu    sync.Mutex
	rects []geom.Rect
	gate  chan struct{}
	err   error
}

func (r *recordingCapturer) Capture(ctx context.Context, rect geom.Rect) (*capture.Result, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.rects = append(r.rects, rect)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &capture.Result{OriginalScreenRect: rect}, nil
}

func (r *recordingCapturer) captured() []geom.Rect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geom.Rect(nil), r.rects...)
}

func newTestController(capt Capturer, onResult ResultHandler) (*Controller, *clock.Fake) {
	c := clock.NewFake(time.Unix(0, 0))
	ctrl := NewController(capt, Options{Clock: c, OnResult: onResult})
	return ctrl, c
}

func drag(ctrl *Controller, x0, y0, x1, y1 float64) Action {
	ctrl.Handle(ev(EventDown, x0, y0))
	ctrl.Handle(ev(EventMove, (x0+x1)/2, (y0+y1)/2))
	return ctrl.Handle(ev(EventUp, x1, y1))
}

func TestControllerInertWhenInactive(t *testing.T) {
	capt := &recordingCapturer{}
	ctrl, _ := newTestController(capt, nil)

	assert.Equal(t, ActionNone, drag(ctrl, 0, 0, 200, 200))
	ctrl.Wait()
	assert.Empty(t, capt.captured())
	assert.Equal(t, "idle", ctrl.Snapshot().State)
}

func TestControllerCapturesAndClearsAfterDelay(t *testing.T) {
	capt := &recordingCapturer{}
	var results []*capture.Result
	var mu sync.Mutex
	ctrl, c := newTestController(capt, func(_ geom.Rect, res *capture.Result, err error) {
		assert.NoError(t, err)
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	})
	ctrl.SetActive(true)

	assert.Equal(t, ActionCapture, drag(ctrl, 300, 200, 100, 100))
	ctrl.Wait()

	want := geom.Rect{X: 100, Y: 100, Width: 200, Height: 100}
	assert.Equal(t, []geom.Rect{want}, capt.captured())
	mu.Lock()
	require.Len(t, results, 1)
	mu.Unlock()

	snap := ctrl.Snapshot()
	assert.True(t, snap.HasRect)
	assert.Equal(t, want, snap.Rect)

	c.Advance(499 * time.Millisecond)
	assert.True(t, ctrl.Snapshot().HasRect)
	c.Advance(time.Millisecond)
	assert.False(t, ctrl.Snapshot().HasRect)
}

func TestControllerDiscardsSmallSelection(t *testing.T) {
	capt := &recordingCapturer{}
	ctrl, c := newTestController(capt, nil)
	ctrl.SetActive(true)

	assert.Equal(t, ActionDiscard, drag(ctrl, 0, 0, 15, 300))
	ctrl.Wait()
	assert.Empty(t, capt.captured())
	assert.False(t, ctrl.Snapshot().HasRect)
	assert.Equal(t, 0, c.Pending())
}

func TestPendingClearDoesNotWipeNewDrag(t *testing.T) {
	capt := &recordingCapturer{}
	ctrl, c := newTestController(capt, nil)
	ctrl.SetActive(true)

	drag(ctrl, 0, 0, 100, 100)
	c.Advance(200 * time.Millisecond)

	ctrl.Handle(ev(EventDown, 10, 10))
	ctrl.Handle(ev(EventMove, 60, 70))
	c.Advance(time.Second)

	snap := ctrl.Snapshot()
	assert.Equal(t, "dragging", snap.State)
	assert.Equal(t, geom.Rect{X: 10, Y: 10, Width: 50, Height: 60}, snap.Rect)
	ctrl.Wait()
}

func TestOverlappingCapturesAllowed(t *testing.T) {
	capt := &recordingCapturer{gate: make(chan struct{})}
	ctrl, _ := newTestController(capt, nil)
	ctrl.SetActive(true)

	assert.Equal(t, ActionCapture, drag(ctrl, 0, 0, 50, 50))
	assert.Equal(t, ActionCapture, drag(ctrl, 100, 100, 200, 200))
	assert.Equal(t, 2, ctrl.Snapshot().PendingCaptures)

	close(capt.gate)
	ctrl.Wait()
	assert.Len(t, capt.captured(), 2)
	assert.Equal(t, 0, ctrl.Snapshot().PendingCaptures)
}

func TestDeactivateMidDragDiscards(t *testing.T) {
	capt := &recordingCapturer{}
	ctrl, _ := newTestController(capt, nil)
	ctrl.SetActive(true)

	ctrl.Handle(ev(EventDown, 0, 0))
	ctrl.Handle(ev(EventMove, 100, 100))
	ctrl.SetActive(false)

	assert.Equal(t, ActionNone, ctrl.Handle(ev(EventUp, 100, 100)))
	ctrl.Wait()
	assert.Empty(t, capt.captured())
	assert.False(t, ctrl.Snapshot().HasRect)
}

func TestCaptureErrorReachesHandler(t *testing.T) {
	boom := errors.New("boom")
	capt := &recordingCapturer{err: boom}
	var got error
	ctrl, _ := newTestController(capt, func(_ geom.Rect, _ *capture.Result, err error) { got = err })
	ctrl.SetActive(true)

	drag(ctrl, 0, 0, 50, 50)
	ctrl.Wait()
	assert.ErrorIs(t, got, boom)
}

func TestCloseCancelsInFlightCaptures(t *testing.T) {
	capt := &recordingCapturer{gate: make(chan struct{})}
	var got error
	ctrl, _ := newTestController(capt, func(_ geom.Rect, _ *capture.Result, err error) { got = err })
	ctrl.SetActive(true)

	drag(ctrl, 0, 0, 50, 50)
	ctrl.Close()
	assert.ErrorIs(t, got, context.Canceled)
}

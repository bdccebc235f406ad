// Package selection turns pointer drags into capture rectangles.
package selection

import (
	"fmt"

	"github.com/bryanchriswhite/PageGrab/internal/geom"
)

// DefaultMinSize is the smallest width and height, exclusive, that a drag
// must exceed to trigger a capture.
const DefaultMinSize = 20

// State of the drag machine.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType identifies a pointer event.
type EventType string

const (
	EventDown EventType = "down"
	EventMove EventType = "move"
	EventUp   EventType = "up"
)

// ParseEventType validates an event name.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventDown, EventMove, EventUp:
		return EventType(s), nil
	default:
		return "", fmt.Errorf("unknown pointer event %q", s)
	}
}

// Event is a pointer event in screen coordinates.
type Event struct {
	Type  EventType  `json:"type"`
	Point geom.Point `json:"point"`
}

// Action tells the caller what a transition asks for.
type Action int

const (
	ActionNone Action = iota
	ActionBegin
	ActionUpdate
	ActionCapture
	ActionDiscard
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionBegin:
		return "begin"
	case ActionUpdate:
		return "update"
	case ActionCapture:
		return "capture"
	case ActionDiscard:
		return "discard"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Machine is the drag state. The zero value is Idle with no rectangle.
type Machine struct {
	State  State
	Anchor geom.Point
	// Rect is the live rectangle while dragging, and the captured rectangle
	// after a capture until it is cleared.
	Rect geom.Rect
}

// Rules parameterize Transition.
type Rules struct {
	Active  bool
	MinSize float64
}

// Transition computes the next machine for an event. It has no side effects.
func Transition(m Machine, ev Event, r Rules) (Machine, Action) {
	if !r.Active {
		return m, ActionNone
	}

	switch ev.Type {
	case EventDown:
		// A down while dragging means the up was lost; start over.
		return Machine{
			State:  Dragging,
			Anchor: ev.Point,
			Rect:   geom.Rect{X: ev.Point.X, Y: ev.Point.Y},
		}, ActionBegin

	case EventMove:
		if m.State != Dragging {
			return m, ActionNone
		}
		m.Rect = geom.BoundingRect(m.Anchor, ev.Point)
		return m, ActionUpdate

	case EventUp:
		if m.State != Dragging {
			return m, ActionNone
		}
		rect := geom.BoundingRect(m.Anchor, ev.Point)
		if rect.Width > r.MinSize && rect.Height > r.MinSize {
			return Machine{State: Idle, Rect: rect}, ActionCapture
		}
		return Machine{State: Idle}, ActionDiscard
	}

	return m, ActionNone
}

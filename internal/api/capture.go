package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/selection"
)

// captureResponse is the payload handed to extraction consumers.
type captureResponse struct {
	ID            string         `json:"id"`
	ImageData     string         `json:"image_data"`
	MediaType     string         `json:"media_type"`
	Coordinates   geom.PixelRect `json:"coordinates"`
	Page          int            `json:"page"`
	SelectionRect geom.Rect      `json:"selection_rect"`
	CapturedAt    time.Time      `json:"captured_at"`
}

func newCaptureResponse(res *capture.Result) captureResponse {
	return captureResponse{
		ID:            res.ID,
		ImageData:     res.DataURL(),
		MediaType:     res.MediaType,
		Coordinates:   res.BitmapRect,
		Page:          res.SourcePageIndex,
		SelectionRect: res.OriginalScreenRect,
		CapturedAt:    res.CapturedAt,
	}
}

func captureErrorStatus(kind capture.Kind) int {
	switch kind {
	case capture.KindEmptyRegion, capture.KindDegenerateRegion:
		return http.StatusUnprocessableEntity
	case capture.KindNoTargetSurface:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var rect geom.Rect
	if err := decodeBody(r, &rect); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.app.Capture(r.Context(), rect)
	if err != nil {
		kind := capture.KindOf(err)
		writeJSON(w, captureErrorStatus(kind), errorResponse{Error: err.Error(), Kind: string(kind)})
		return
	}

	writeJSON(w, http.StatusOK, newCaptureResponse(res))
}

type selectionModeRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleGetSelectionMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"active": s.app.Selection.Active()})
}

func (s *Server) handleSetSelectionMode(w http.ResponseWriter, r *http.Request) {
	var req selectionModeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, errors.New("active is required"))
		return
	}

	s.app.Selection.SetActive(*req.Active)
	writeJSON(w, http.StatusOK, s.app.Selection.Snapshot())
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Selection.Snapshot())
}

type selectionEventRequest struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type selectionEventResponse struct {
	Action    string             `json:"action"`
	Selection selection.Snapshot `json:"selection"`
}

func (s *Server) handleSelectionEvent(w http.ResponseWriter, r *http.Request) {
	var req selectionEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := selection.ParseEventType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	action := s.app.Selection.Handle(selection.Event{
		Type:  typ,
		Point: geom.Point{X: req.X, Y: req.Y},
	})
	writeJSON(w, http.StatusOK, selectionEventResponse{
		Action:    action.String(),
		Selection: s.app.Selection.Snapshot(),
	})
}

package api

import (
	"bytes"
	"errors"
	"io/fs"
	"net/http"

	"github.com/bryanchriswhite/PageGrab/internal/document"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
	"github.com/bryanchriswhite/PageGrab/internal/render"
	"github.com/bryanchriswhite/PageGrab/internal/viewer"
)

type openDocumentRequest struct {
	Path string `json:"path"`
}

type openDocumentResponse struct {
	SessionID string          `json:"session_id"`
	Pages     int             `json:"pages"`
	Progress  render.Progress `json:"progress"`
}

func documentErrorStatus(err error) int {
	switch {
	case errors.Is(err, document.ErrUnsupportedFile):
		return http.StatusBadRequest
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, document.ErrNoPages):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	var req openDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := s.app.Viewer.OpenFile(r.Context(), req.Path)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Str("path", req.Path).Msg("Failed to open document")
		writeError(w, documentErrorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, openDocumentResponse{
		SessionID: session.ID(),
		Pages:     session.TotalPages(),
		Progress:  session.Progress(),
	})
}

func (s *Server) handleCloseDocument(w http.ResponseWriter, r *http.Request) {
	s.app.Viewer.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.app.Viewer.Pages()
	if errors.Is(err, viewer.ErrNoDocument) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (s *Server) handleRenderProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Barrier.Progress())
}

func (s *Server) handleGetSurfaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Registry.Snapshot())
}

func (s *Server) handleGetViewport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Viewer.Viewport())
}

// handleUpdateViewport applies the fields present in the body on top of the
// current viewport.
func (s *Server) handleUpdateViewport(w http.ResponseWriter, r *http.Request) {
	vp := s.app.Viewer.Viewport()
	if err := decodeBody(r, &vp); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("viewport width and height must be positive"))
		return
	}
	writeJSON(w, http.StatusOK, s.app.Viewer.SetViewport(vp))
}

func (s *Server) handleZoomIn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Viewer.ZoomIn())
}

func (s *Server) handleZoomOut(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Viewer.ZoomOut())
}

func (s *Server) handlePreviewPNG(w http.ResponseWriter, r *http.Request) {
	vp := s.app.Viewer.Viewport()

	var buf bytes.Buffer
	if err := s.app.Overlay.RenderPNG(r.Context(), &buf, int(vp.Width), int(vp.Height)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handlePreviewStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Preview.Stats())
}

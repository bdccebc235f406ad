package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/PageGrab/internal/app"
	"github.com/bryanchriswhite/PageGrab/internal/config"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// Version is reported by the health endpoint.
const Version = "0.2.0"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	app       *app.App
	configMgr *config.Manager
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	httpSrv *http.Server
}

// NewServer creates a new API server
func NewServer(a *app.App, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		app:       a,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Documents and rendering
	api.HandleFunc("/documents", s.handleOpenDocument).Methods("POST")
	api.HandleFunc("/documents", s.handleCloseDocument).Methods("DELETE")
	api.HandleFunc("/documents/pages", s.handleGetPages).Methods("GET")
	api.HandleFunc("/render/progress", s.handleRenderProgress).Methods("GET")
	api.HandleFunc("/render/stream", s.handleRenderStream)
	api.HandleFunc("/surfaces", s.handleGetSurfaces).Methods("GET")

	// Viewport
	api.HandleFunc("/viewport", s.handleGetViewport).Methods("GET")
	api.HandleFunc("/viewport", s.handleUpdateViewport).Methods("PUT")
	api.HandleFunc("/viewport/zoom-in", s.handleZoomIn).Methods("POST")
	api.HandleFunc("/viewport/zoom-out", s.handleZoomOut).Methods("POST")
	api.HandleFunc("/viewport/preview.png", s.handlePreviewPNG).Methods("GET")
	api.HandleFunc("/viewport/stream", s.app.Preview.HTTPHandler()).Methods("GET")
	api.HandleFunc("/viewport/stream/stats", s.handlePreviewStats).Methods("GET")

	// Selection and capture
	api.HandleFunc("/selection", s.handleGetSelection).Methods("GET")
	api.HandleFunc("/selection/mode", s.handleGetSelectionMode).Methods("GET")
	api.HandleFunc("/selection/mode", s.handleSetSelectionMode).Methods("POST")
	api.HandleFunc("/selection/events", s.handleSelectionEvent).Methods("POST")
	api.HandleFunc("/capture", s.handleCapture).Methods("POST")
	api.HandleFunc("/captures/stream", s.handleCaptureStream)

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.enableCORS(s.router))
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)

	s.mu.Lock()
	if s.httpSrv != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	logger.WithComponent("api").Info().Str("addr", "http://localhost"+addr).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.WithComponent("api").Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Failed to encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

// handleUpdateConfig stores a full config. Running components keep the
// settings they were built with until restart.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Stored()
	if err := decodeBody(r, cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.configMgr.Update(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"restart_required": true,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"version":      Version,
		"document":     s.app.Viewer.HasDocument(),
		"selection_on": s.app.Selection.Active(),
	})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>PageGrab</title>
    <style>
        body { font-family: sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; padding: 30px; border-radius: 8px; }
        code { background: #f5f5f5; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>PageGrab</h1>
        <p>Open a PDF, drag a rectangle over a page and get the page pixels under it.</p>
        <ul>
            <li><code>POST /api/documents</code> open a PDF</li>
            <li><a href="/api/render/progress">/api/render/progress</a> render progress</li>
            <li><a href="/api/viewport/preview.png">/api/viewport/preview.png</a> current viewport</li>
            <li><a href="/api/viewport/stream">/api/viewport/stream</a> live viewport (MJPEG)</li>
            <li><code>POST /api/capture</code> capture a screen rectangle</li>
            <li><a href="/api/config">/api/config</a> configuration</li>
        </ul>
    </div>
</body>
</html>`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(indexHTML))
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api") {
		http.NotFound(w, r)
		return
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("no such endpoint: %s %s", r.Method, r.URL.Path))
}

package output

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// FrameSource produces the next preview frame.
type FrameSource func(ctx context.Context) (*image.RGBA, error)

// MJPEGConfig configures the preview stream.
type MJPEGConfig struct {
	FPS     int
	Quality int
}

// Stats describes the stream.
type Stats struct {
	Running    bool      `json:"running"`
	Frames     uint64    `json:"frames"`
	Clients    int       `json:"clients"`
	FPS        float64   `json:"fps"`
	LastUpdate time.Time `json:"last_update"`
}

// MJPEGOutput streams viewport preview frames as Motion JPEG over HTTP.
// Frames are only produced while at least one client is connected.
type MJPEGOutput struct {
	config MJPEGConfig
	source FrameSource

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	statsMu    sync.Mutex
	frameCount uint64
	startTime  time.Time
	lastUpdate time.Time
}

// NewMJPEGOutput creates a stream fed by source.
func NewMJPEGOutput(config MJPEGConfig, source FrameSource) *MJPEGOutput {
	if config.FPS <= 0 {
		config.FPS = 5
	}
	if config.Quality < 1 || config.Quality > 100 {
		config.Quality = 80
	}
	return &MJPEGOutput{
		config:  config,
		source:  source,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start begins producing frames.
func (m *MJPEGOutput) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	m.statsMu.Lock()
	m.startTime = time.Now()
	m.frameCount = 0
	m.statsMu.Unlock()

	go m.loop(ctx, m.done)

	logger.WithComponent("output").Info().Int("fps", m.config.FPS).Msg("Preview stream started")
	return nil
}

// Stop halts frame production and disconnects every client.
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	done := m.done
	m.mu.Unlock()

	<-done

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("output").Info().Uint64("frames", m.Stats().Frames).Msg("Preview stream stopped")
	return nil
}

func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *MJPEGOutput) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(m.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Clients() == 0 {
				continue
			}
			frame, err := m.source(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.WithComponent("output").Warn().Err(err).Msg("Failed to produce preview frame")
				}
				continue
			}
			if err := m.WriteFrame(frame); err != nil {
				logger.WithComponent("output").Warn().Err(err).Msg("Failed to write preview frame")
			}
		}
	}
}

// WriteFrame encodes frame and sends it to every client.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.statsMu.Lock()
	m.frameCount++
	m.lastUpdate = time.Now()
	m.statsMu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Clients returns the number of connected clients.
func (m *MJPEGOutput) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *MJPEGOutput) Stats() Stats {
	m.statsMu.Lock()
	frames, start, last := m.frameCount, m.startTime, m.lastUpdate
	m.statsMu.Unlock()

	s := Stats{
		Running:    m.IsRunning(),
		Frames:     frames,
		Clients:    m.Clients(),
		LastUpdate: last,
	}
	if !start.IsZero() {
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			s.FPS = float64(frames) / elapsed
		}
	}
	return s
}

// HTTPHandler serves the multipart stream.
func (m *MJPEGOutput) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("output")
		log.Info().Int("clients", clientCount).Msg("Preview client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Preview client disconnected")
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
					return
				}
				if _, err := w.Write(jpegData); err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}
}

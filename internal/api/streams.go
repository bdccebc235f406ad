package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/PageGrab/internal/logger"
	"github.com/bryanchriswhite/PageGrab/internal/render"
)

const (
	streamBuffer = 64
	writeWait    = 5 * time.Second
)

// streamEvent is one websocket message.
type streamEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// watchClose reads until the peer goes away. Control frames are handled by
// the read loop itself.
func watchClose(conn *websocket.Conn) <-chan struct{} {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return closed
}

func writeEvent(conn *websocket.Conn, ev streamEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func (s *Server) handleRenderStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events := make(chan streamEvent, streamBuffer)
	push := func(ev streamEvent) {
		select {
		case events <- ev:
		default:
			log.Debug().Str("type", ev.Type).Msg("Render stream client is behind, dropping event")
		}
	}
	unsubProgress := s.app.Barrier.OnProgress(func(p render.Progress) {
		push(streamEvent{Type: "progress", Data: p})
	})
	defer unsubProgress()
	unsubReady := s.app.Barrier.OnReady(func(o render.Outcome) {
		push(streamEvent{Type: "ready", Data: o})
	})
	defer unsubReady()

	if err := writeEvent(conn, streamEvent{Type: "progress", Data: s.app.Barrier.Progress()}); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	closed := watchClose(conn)
	for {
		select {
		case <-closed:
			return
		case ev := <-events:
			if err := writeEvent(conn, ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleCaptureStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	results, unsubscribe := s.app.Captures.Subscribe(streamBuffer)
	defer unsubscribe()

	closed := watchClose(conn)
	for {
		select {
		case <-closed:
			return
		case res, ok := <-results:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeEvent(conn, streamEvent{Type: "capture", Data: newCaptureResponse(res)}); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

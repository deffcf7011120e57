package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/chartbracket/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
	pongWait   = 3 * pingPeriod
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents streams a tournament view after every applied result. The
// current view, if a tournament is running, is sent first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	events, cancel, err := s.manager.Subscribe(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("session_id", id, "request_id", RequestID(r.Context()))
	logger.Debug("event stream opened")

	// The client sends nothing; reading only services pongs and notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	if view, err := s.manager.Tournament(id); err == nil {
		if err := write(view); err != nil {
			return
		}
	} else if !errors.Is(err, service.ErrNoTournament) {
		logger.Warn("failed to load tournament for event stream", "error", err)
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case view, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session deleted"),
					time.Now().Add(writeWait))
				return
			}
			if err := write(view); err != nil {
				logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("event stream closed by client")
			return
		case <-r.Context().Done():
			return
		}
	}
}

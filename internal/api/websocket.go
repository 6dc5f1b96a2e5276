package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// scanEventsHandler streams one scan's progress events over a WebSocket.
// Each event is sent as a JSON message; the connection closes once the
// scan reaches a terminal state and the event stream drains.
func (s *Server) scanEventsHandler(w http.ResponseWriter, r *http.Request) {
	scanID, err := scanIDFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.orchestrator.Events(scanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "scan_id", scanID, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// If the client vanishes mid-scan, keep draining so the reporter's
	// delivery never backs up behind a dead connection.
	defer func() {
		go func() {
			for range events {
			}
		}()
	}()

	s.logger.Info("Event stream opened", "scan_id", scanID, "remote_addr", r.RemoteAddr)

	// Discard client messages; the read loop only notices disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Info("Event stream client dropped", "scan_id", scanID, "error", err)
				return
			}
		case <-pinger.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

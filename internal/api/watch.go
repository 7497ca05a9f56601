package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"captioner/internal/logging"
)

const watchWriteTimeout = 10 * time.Second

// handleWatch streams job views over a websocket until the job is terminal,
// unknown, or the client goes away.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log(r).Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	updates, stop := s.jobs.Watch(id)
	defer stop()

	// The client never sends data; reading only surfaces its close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case view := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(view); err != nil {
				return
			}
			if !view.Found() || view.State.Terminal() {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.State))
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
		}
	}
}

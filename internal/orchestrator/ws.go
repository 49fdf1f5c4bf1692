package orchestrator

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// maxClientMessage caps a single inbound frame; clients only send pings.
const maxClientMessage = 4 << 10

// EventsConfig tunes the event channel endpoint.
type EventsConfig struct {
	// ConnectTimeout bounds the WebSocket handshake.
	ConnectTimeout time.Duration
	// HeartbeatTimeout is the read deadline, renewed by every client frame.
	HeartbeatTimeout time.Duration
}

// Events handles GET /ws. The subscriber receives "connected" and a "state"
// snapshot, then every published event. Clients send {"type":"ping"}.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.events.ConnectTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxClientMessage)
	renew := func() error {
		return conn.SetReadDeadline(time.Now().Add(h.events.HeartbeatTimeout))
	}
	_ = renew()

	sub := h.orch.Connect(r.Context(), conn)
	defer h.orch.Disconnect(sub)

	conn.SetPongHandler(func(string) error {
		h.orch.Heartbeat(sub)
		return renew()
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("subscriber read failed",
					slog.String("subscriber_id", sub.ID()),
					slog.String("error", err.Error()))
			}
			return
		}
		h.orch.ClientMessage(sub, data)
		_ = renew()
	}
}

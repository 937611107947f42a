package inspector

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // debug endpoint, never exposed past localhost by default
	},
}

// Handler upgrades HTTP connections to the trace-streaming WebSocket.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler wires a Handler to the given client registry.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("inspector upgrade failed", "error", err)
		return
	}

	client := h.manager.AddConnection(conn, r)
	h.logger.Debug("inspector client connected", "conn_id", client.ID)

	go h.readPump(client)
}

// readPump does not expect any client-sent messages — the trace is
// one-directional — but it must keep reading to notice the connection
// close and to answer control frames (ping/pong, close) per the
// gorilla/websocket contract.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.manager.RemoveConnection(client.ID)
		client.Conn.Close()
		h.logger.Debug("inspector client disconnected", "conn_id", client.ID)
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("inspector read error", "conn_id", client.ID, "error", err)
			}
			break
		}
	}
}

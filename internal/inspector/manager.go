package inspector

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is a single connected debug client.
type Client struct {
	ID         string
	Conn       *websocket.Conn
	RemoteAddr string
	mu         sync.Mutex
}

// send writes one msgpack-encoded event to this client.
func (c *Client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.BinaryMessage, data)
}

// Manager keeps the set of connected debug clients. There is no room
// bookkeeping: every connected client is subscribed to the single
// trace stream a Controller produces.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

// NewManager creates an empty client registry.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// AddConnection registers a newly upgraded debug connection.
func (m *Manager) AddConnection(conn *websocket.Conn, r *http.Request) *Client {
	client := &Client{
		ID:         generateConnID(),
		Conn:       conn,
		RemoteAddr: r.RemoteAddr,
	}
	m.mu.Lock()
	m.clients[client.ID] = client
	m.mu.Unlock()
	return client
}

// RemoveConnection drops a client from the registry.
func (m *Manager) RemoveConnection(id string) {
	m.mu.Lock()
	delete(m.clients, id)
	m.mu.Unlock()
}

// Broadcast delivers encoded bytes to every connected client,
// dropping individual failures rather than aborting the trace.
func (m *Manager) Broadcast(data []byte) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(data); err != nil {
			m.logger.Warn("inspector broadcast failed", "conn_id", c.ID, "error", err)
		}
	}
}

// ClientCount reports the number of connected debug clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func generateConnID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

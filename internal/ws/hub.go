package ws

import (
	"log/slog"
	"sync"
)

// Hub fans frames out to every connected devtools client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	h.logger.Debug("ws register", "remote", c.Remote, "clients", len(h.clients))
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
	h.logger.Debug("ws unregister", "remote", c.Remote, "clients", len(h.clients))
}

// Broadcast queues data for every client. Clients whose send buffer is
// full miss the frame.
func (h *Hub) Broadcast(data []byte) {
	if data == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		select {
		case c.Send <- data:
			sent++
		default:
			h.logger.Warn("ws dropped message", "remote", c.Remote)
		}
	}

	h.logger.Debug("ws broadcast", "recipients", sent)
}

// Push queues data for a single client.
func (h *Hub) Push(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		h.logger.Warn("ws dropped message", "remote", c.Remote)
		return false
	}
}

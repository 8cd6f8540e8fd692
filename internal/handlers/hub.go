// internal/handlers/hub.go
package handlers

import (
	"context"
	"sync"

	"github.com/jason-s-yu/hitline/internal/game"
	"github.com/sirupsen/logrus"
)

const outQueueSize = 64

// Client is one live WebSocket connection.
type Client struct {
	ID        string
	UserAgent string
	Remote    string

	// OutChan feeds the write pump. Writers never block on it.
	OutChan chan interface{}
	Cancel  context.CancelFunc
}

// closeFrame asks the write pump to close the socket once everything queued before it is written.
type closeFrame struct {
	code   int
	reason string
}

// Write enqueues msg without blocking. It reports false if the queue is full.
func (c *Client) Write(msg interface{}) bool {
	select {
	case c.OutChan <- msg:
		return true
	default:
		return false
	}
}

// Hub tracks live clients and the room groups they belong to. It is the
// game.Transport used in production.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
	logger  *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		logger:  logger,
	}
}

// Register adds a freshly accepted client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister drops a client from the hub and every group.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	for code, g := range h.groups {
		delete(g, id)
		if len(g) == 0 {
			delete(h.groups, code)
		}
	}
}

// Count returns the number of live clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Join(connID, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	g, ok := h.groups[roomCode]
	if !ok {
		g = make(map[string]*Client)
		h.groups[roomCode] = g
	}
	g[connID] = c
}

func (h *Hub) Leave(connID, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[roomCode]; ok {
		delete(g, connID)
		if len(g) == 0 {
			delete(h.groups, roomCode)
		}
	}
}

func (h *Hub) Broadcast(roomCode string, ev game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.groups[roomCode] {
		h.deliver(c, ev)
	}
}

func (h *Hub) Send(connID string, ev game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		h.deliver(c, ev)
	}
}

// Disconnect queues a close behind anything already pending for the
// client. A client whose queue is full is cut off at once.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if !c.Write(closeFrame{code: int(ForcedDisconnectCode), reason: "session closed"}) {
		c.Cancel()
	}
}

// reply delivers an ack to a single client.
func (h *Hub) reply(c *Client, msg interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver(c, msg)
}

func (h *Hub) deliver(c *Client, msg interface{}) {
	if c.Write(msg) {
		return
	}
	h.logger.WithFields(logrus.Fields{
		"conn":   c.ID,
		"remote": c.Remote,
	}).Warn("outbound queue full, dropping client")
	c.Cancel()
}

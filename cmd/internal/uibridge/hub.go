package uibridge

import (
	"log/slog"
	"sync"

	v1 "arcclient/shared/contracts/ui/v1"
)

// Hub tracks the shells connected to one tab and fans envelopes out to them.
//
// Join/Leave are safe under concurrent Broadcast. Broadcast never blocks: an
// envelope is dropped for a member whose queue is full.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	members map[string]*Client
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		members: make(map[string]*Client),
	}
}

// Join adds a client.
func (h *Hub) Join(c *Client) {
	if c == nil || c.ConnID == "" {
		return
	}
	h.mu.Lock()
	h.members[c.ConnID] = c
	n := len(h.members)
	h.mu.Unlock()

	h.log.Info("uibridge.member.join", "conn_id", c.ConnID, "members", n)
}

// Leave removes a client and signals its shutdown. Removal happens first so a
// broadcaster never holds a member that is being torn down.
func (h *Hub) Leave(connID string) {
	if connID == "" {
		return
	}
	h.mu.Lock()
	c := h.members[connID]
	delete(h.members, connID)
	h.mu.Unlock()

	if c != nil {
		c.Close()
		h.log.Info("uibridge.member.leave", "conn_id", connID)
	}
}

// Len returns the number of connected shells.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Broadcast delivers env to every member, dropping under backpressure.
func (h *Hub) Broadcast(env v1.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, m := range h.members {
		if !m.offer(env) {
			h.log.Debug("uibridge.broadcast.drop", "conn_id", id, "type", env.Type)
		}
	}
}

package realtime

import (
	"sync"
)

// Message is one transport-level emission to a connection.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Hub is the in-process channel transport: it hands each attached connection
// a buffered message channel and drops messages for slow consumers instead of
// blocking an emit.
type Hub struct {
	mu    sync.Mutex
	conns map[string]chan Message
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]chan Message)}
}

// Attach registers a connection and returns its receive channel.
func (h *Hub) Attach(connID string, buffer int) <-chan Message {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)
	h.mu.Lock()
	h.conns[connID] = ch
	h.mu.Unlock()
	return ch
}

// Detach closes and forgets the connection's channel. Unknown connections are
// a no-op.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.conns[connID]; ok {
		delete(h.conns, connID)
		close(ch)
	}
}

// EmitToConn delivers a message to a single connection, dropping it when the
// buffer is full or the connection is gone. The send happens under the lock so
// it cannot race a Detach closing the channel.
func (h *Hub) EmitToConn(connID, event string, data map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case ch <- Message{Event: event, Data: data}:
	default:
	}
}

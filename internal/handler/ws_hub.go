package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types sent over WebSocket besides the analysis events.
const (
	EventConnected = "connected"
	EventError     = "error"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type       string `json:"type"`
	AnalysisID string `json:"analysis_id"`
	Data       any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action     string `json:"action"` // "subscribe" or "unsubscribe"
	AnalysisID string `json:"analysis_id"`
}

// WSConn wraps a WebSocket connection with its analyst and subscriptions.
type WSConn struct {
	conn      *websocket.Conn
	analystID string
	send      chan []byte
}

// Hub manages WebSocket connections and analysis subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	analyses    map[string]map[*WSConn]bool // analysisID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		analyses:    make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connections[c] {
		return
	}
	delete(h.connections, c)
	for id, conns := range h.analyses {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.analyses, id)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to an analysis channel.
func (h *Hub) Subscribe(c *WSConn, analysisID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.analyses[analysisID] == nil {
		h.analyses[analysisID] = make(map[*WSConn]bool)
	}
	h.analyses[analysisID][c] = true
}

// Unsubscribe removes a connection from an analysis channel.
func (h *Hub) Unsubscribe(c *WSConn, analysisID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.analyses[analysisID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.analyses, analysisID)
		}
	}
}

// BroadcastToAnalysis sends an event to all connections subscribed to an analysis.
func (h *Hub) BroadcastToAnalysis(analysisID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("analysisId", analysisID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.analyses[analysisID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("analystId", c.analystID).Str("analysisId", analysisID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// SendTo queues an event for a single connection.
func (h *Hub) SendTo(c *WSConn, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connections[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// AnalysisSubscriberCount returns the number of connections subscribed to an analysis.
func (h *Hub) AnalysisSubscriberCount(analysisID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.analyses[analysisID])
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/secgame/api/internal/auth"
	"github.com/freeeve/secgame/api/internal/model"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

// AnalysisLookup resolves an analysis owned by an analyst.
type AnalysisLookup interface {
	Get(ctx context.Context, analystID, id string) (*model.Analysis, error)
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub      *Hub
	jwtMgr   *auth.JWTManager
	analyses AnalysisLookup
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler. allowedOrigin is matched against the
// Origin header of upgrade requests; "*" accepts any origin.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, analyses AnalysisLookup, allowedOrigin string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		jwtMgr:   jwtMgr,
		analyses: analyses,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:      conn,
		analystID: claims.AnalystID,
		send:      make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	// Send a welcome message so the client can confirm the connection is live.
	h.hub.SendTo(client, WSEvent{Type: EventConnected, Data: map[string]any{}})

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("analystId", claims.AnalystID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("analystId", c.analystID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("analystId", c.analystID).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.AnalysisID == "" {
			continue
		}
		h.handleMessage(c, msg)
	}
}

// handleMessage applies a client action. Subscribing to an analysis the
// analyst does not own, or one already finished, answers with an error
// event; a finished analysis also gets its final state.
func (h *WSHandler) handleMessage(c *WSConn, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		a, err := h.analyses.Get(context.Background(), c.analystID, msg.AnalysisID)
		if err != nil {
			h.hub.SendTo(c, WSEvent{Type: EventError, AnalysisID: msg.AnalysisID, Data: map[string]string{"error": err.Error()}})
			return
		}
		if a.Status.Terminal() {
			h.hub.SendTo(c, WSEvent{Type: "analysis_" + string(a.Status), AnalysisID: a.ID, Data: a})
			return
		}
		h.hub.Subscribe(c, msg.AnalysisID)
	case "unsubscribe":
		h.hub.Unsubscribe(c, msg.AnalysisID)
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

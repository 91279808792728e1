package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	maxFrameBytes = 8192
)

// SendFunc persists an inbound chat message and fans it out. Implemented by
// the chat handler so the transport stays free of storage concerns.
type SendFunc func(ctx context.Context, senderID, receiverID, body string) error

// inboundFrame is a client-to-server websocket message. Type "chat" sends a
// message, "focus" updates which conversation the client is viewing.
type inboundFrame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id,omitempty"`
	Body       string `json:"body,omitempty"`
	PeerID     string `json:"peer_id,omitempty"`
}

type WSHandler struct {
	hub      *Hub
	logger   *slog.Logger
	send     SendFunc
	upgrader websocket.Upgrader
}

func NewWSHandler(h *Hub, logger *slog.Logger, send SendFunc) *WSHandler {
	return &WSHandler{
		hub:    h,
		logger: logger,
		send:   send,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth, not cookies, so cross-origin upgrades are fine.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until the client
// disconnects or a newer connection for the same user supersedes it. Identity
// comes from the X-User-Id header set by the auth middleware.
func (ws *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warn("websocket upgrade failed", "err", err, "user_id", userID)
		return
	}

	session := ws.hub.Subscribe(userID, r.URL.Query().Get("peer"))
	ws.logger.Info("websocket connected", "user_id", userID)

	go ws.writePump(conn, session)
	ws.readPump(r.Context(), conn, session)

	ws.hub.Unsubscribe(session)
	_ = conn.Close()
	ws.logger.Info("websocket disconnected", "user_id", userID)
}

// readPump consumes client frames. Malformed frames are logged and dropped
// without tearing down the connection; send failures are reported back as an
// error frame.
func (ws *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, s *Session) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn("websocket read error", "err", err, "user_id", s.UserID)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			ws.logger.Warn("dropping malformed frame", "err", err, "user_id", s.UserID)
			continue
		}

		switch frame.Type {
		case "chat":
			if err := ws.send(ctx, s.UserID, frame.ReceiverID, frame.Body); err != nil {
				ws.logger.Warn("chat send rejected", "err", err, "user_id", s.UserID)
				ws.hub.Publish(s.UserID, Event{Type: "error", Body: err.Error()})
			}
		case "focus":
			s.SetFocusedPeer(frame.PeerID)
		default:
			ws.logger.Warn("dropping frame with unknown type", "type", frame.Type, "user_id", s.UserID)
		}
	}
}

// writePump is the single writer for the connection. It drains the session's
// outbound channel in order and closes the socket when the session ends,
// which unblocks the read pump.
func (ws *WSHandler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-s.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"))
			_ = conn.Close()
			return
		}
	}
}

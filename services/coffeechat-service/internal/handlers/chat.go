package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/chat"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/hub"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

type ChatHandler struct {
	repo     *storage.ChatRepository
	profiles *storage.ProfileRepository
	hub      *hub.Hub
	logger   *slog.Logger
}

func NewChatHandler(repo *storage.ChatRepository, profiles *storage.ProfileRepository, h *hub.Hub, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		repo:     repo,
		profiles: profiles,
		hub:      h,
		logger:   logger,
	}
}

type messageItem struct {
	MessageID  string `json:"message_id"`
	RoomKey    string `json:"room_key"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	SentAt     string `json:"sent_at"`
	Read       bool   `json:"read"`
}

func toMessageItem(m model.ChatMessage) messageItem {
	return messageItem{
		MessageID:  m.ID,
		RoomKey:    m.RoomKey,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		SentAt:     m.SentAt.UTC().Format(time.RFC3339),
		Read:       m.Read,
	}
}

// SendChat persists a message and pushes it to both parties' live
// connections. Persist happens first: the chat_messages row is the durable
// copy, the websocket push is best-effort on top of it.
func (h *ChatHandler) SendChat(ctx context.Context, senderID, receiverID, body string) (model.ChatMessage, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return model.ChatMessage{}, fmt.Errorf("receiver_id is required")
	}
	if receiverID == senderID {
		return model.ChatMessage{}, model.ErrInvalidSelf
	}
	if err := chat.ValidateBody(body); err != nil {
		return model.ChatMessage{}, err
	}

	msg, err := h.repo.Insert(ctx, senderID, receiverID, body)
	if err != nil {
		return model.ChatMessage{}, err
	}

	senderName := senderID
	if p, err := h.profiles.Get(ctx, senderID); err == nil && p.DisplayName != "" {
		senderName = p.DisplayName
	}

	h.hub.PublishChat(hub.Event{
		Type:       hub.EventChat,
		MessageID:  msg.ID,
		RoomKey:    msg.RoomKey,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Body,
		Timestamp:  msg.SentAt.UTC().Format(time.RFC3339),
	}, chat.Preview(msg.Body))

	return msg, nil
}

type sendChatRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

// Send is the HTTP fallback for clients without a websocket.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	msg, err := h.SendChat(r.Context(), callerID(r), req.ReceiverID, req.Body)
	if err != nil {
		if errors.Is(err, model.ErrInvalidSelf) {
			writeDomainError(w, err)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageItem(msg))
}

// History returns the caller's conversation with a peer in send order and
// marks the received half read.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	peerID := strings.TrimSpace(r.URL.Query().Get("peer_id"))
	if peerID == "" {
		http.Error(w, "peer_id is required", http.StatusBadRequest)
		return
	}

	userID := callerID(r)
	msgs, err := h.repo.History(r.Context(), userID, peerID)
	if err != nil {
		h.logger.Error("chat history failed", "err", err, "user_id", userID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	items := make([]messageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageItem(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_key": chat.RoomKey(userID, peerID),
		"messages": items,
	})
}

// Room returns the deterministic room key for the caller and a peer.
func (h *ChatHandler) Room(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	peerID := strings.TrimSpace(r.URL.Query().Get("peer_id"))
	if peerID == "" {
		http.Error(w, "peer_id is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room_key": chat.RoomKey(callerID(r), peerID)})
}

type notificationItem struct {
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Preview    string `json:"preview"`
	SentAt     string `json:"sent_at"`
}

// Notifications returns the latest unread messages as previews.
func (h *ChatHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := callerID(r)
	msgs, err := h.repo.UnreadLatest(r.Context(), userID, 10)
	if err != nil {
		h.logger.Error("notifications fetch failed", "err", err, "user_id", userID)
		http.Error(w, "failed to load notifications", http.StatusInternalServerError)
		return
	}

	names := make(map[string]string)
	items := make([]notificationItem, 0, len(msgs))
	for _, m := range msgs {
		name, ok := names[m.SenderID]
		if !ok {
			name = m.SenderID
			if p, err := h.profiles.Get(r.Context(), m.SenderID); err == nil && p.DisplayName != "" {
				name = p.DisplayName
			}
			names[m.SenderID] = name
		}
		items = append(items, notificationItem{
			MessageID:  m.ID,
			SenderID:   m.SenderID,
			SenderName: name,
			Preview:    chat.Preview(m.Body),
			SentAt:     m.SentAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string][]notificationItem{"notifications": items})
}

// ClearNotifications marks everything addressed to the caller as read.
func (h *ChatHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := callerID(r)
	n, err := h.repo.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.logger.Error("clear notifications failed", "err", err, "user_id", userID)
		http.Error(w, "failed to clear notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

// UnreadCount returns the caller's unread message count for the badge.
func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := callerID(r)
	n, err := h.repo.UnreadCount(r.Context(), userID)
	if err != nil {
		h.logger.Error("unread count failed", "err", err, "user_id", userID)
		http.Error(w, "failed to count unread", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

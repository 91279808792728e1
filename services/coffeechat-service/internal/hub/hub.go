// Package hub maintains at most one live connection per user and fans chat
// and booking events out to them.
//
// Delivery guarantees: publish never blocks the caller; order is FIFO within
// a single recipient's connection; a full buffer drops the push (clients
// recover from persisted history and booking state, events are never the
// sole source of truth). Connections are independent per user; publishing to
// one user is never ordered relative to another.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the wire payload pushed to clients.
type Event struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id,omitempty"`
	RoomKey        string `json:"room_key,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	SenderName     string `json:"sender_name,omitempty"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	Body           string `json:"body,omitempty"`
	Preview        string `json:"preview,omitempty"`
	BookingID      string `json:"booking_id,omitempty"`
	Status         string `json:"status,omitempty"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	MeetingLink    string `json:"meeting_link,omitempty"`
	Timestamp      string `json:"timestamp"`
}

const (
	EventChat             = "chat"
	EventChatNotification = "chat_notification"
	EventBooking          = "booking_event"
)

// Session is one user's live connection. The outbound channel is drained by
// a single writer goroutine, which preserves publish order per recipient.
type Session struct {
	ID     string
	UserID string

	mu          sync.Mutex
	focusedPeer string

	outbound chan []byte
	done     chan struct{}
	once     sync.Once
}

// Outbound is read by the transport's write pump.
func (s *Session) Outbound() <-chan []byte { return s.outbound }

// Done closes when the session is superseded or unregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.once.Do(func() { close(s.done) })
}

// SetFocusedPeer records which conversation the client is actively viewing.
// An empty peer means none. This is per-subscription context, not process
// state, and only gates the unread badge event (see PublishChat).
func (s *Session) SetFocusedPeer(peerID string) {
	s.mu.Lock()
	s.focusedPeer = peerID
	s.mu.Unlock()
}

func (s *Session) focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focusedPeer
}

type Hub struct {
	logger *slog.Logger
	buffer int

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(logger *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		logger:   logger,
		buffer:   buffer,
		sessions: make(map[string]*Session),
	}
}

// Subscribe registers a connection for userID. Last connect wins: an existing
// session for the same user is closed and superseded.
func (h *Hub) Subscribe(userID, focusedPeer string) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		focusedPeer: focusedPeer,
		outbound:    make(chan []byte, h.buffer),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	prev := h.sessions[userID]
	h.sessions[userID] = s
	h.mu.Unlock()

	if prev != nil {
		prev.close()
		h.logger.Info("superseded stale connection", "user_id", userID)
	}
	return s
}

// Unsubscribe frees the user's connection slot. A session that was already
// superseded does not evict its successor.
func (h *Hub) Unsubscribe(s *Session) {
	h.mu.Lock()
	if cur, ok := h.sessions[s.UserID]; ok && cur.ID == s.ID {
		delete(h.sessions, s.UserID)
	}
	h.mu.Unlock()
	s.close()
}

func (h *Hub) session(userID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// Connected reports whether userID currently holds a live connection.
func (h *Hub) Connected(userID string) bool {
	return h.session(userID) != nil
}

// Publish pushes an event to userID's connection if present. It returns
// whether the event was enqueued; false means offline or buffer full, and the
// caller relies on durable state for eventual delivery. It never blocks.
func (h *Hub) Publish(userID string, evt Event) bool {
	s := h.session(userID)
	if s == nil {
		return false
	}
	if evt.Timestamp == "" {
		evt.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("event marshal failed", "err", err, "type", evt.Type)
		return false
	}

	select {
	case s.outbound <- payload:
		return true
	case <-s.done:
		return false
	default:
		h.logger.Warn("dropping event for slow consumer", "user_id", userID, "type", evt.Type)
		return false
	}
}

// PublishChat delivers a stored message to both parties and an unread badge
// event to the receiver. The badge is skipped when the receiver's session is
// focused on the sender's conversation; the raw chat event is always
// delivered. The focus flag is inherently racy (the client may have just
// switched away), so suppression is a UX contract, not a delivery guarantee.
func (h *Hub) PublishChat(chatEvt Event, preview string) {
	h.Publish(chatEvt.SenderID, chatEvt)
	h.Publish(chatEvt.ReceiverID, chatEvt)

	if s := h.session(chatEvt.ReceiverID); s != nil && s.focused() == chatEvt.SenderID {
		return
	}
	h.Publish(chatEvt.ReceiverID, Event{
		Type:       EventChatNotification,
		MessageID:  chatEvt.MessageID,
		RoomKey:    chatEvt.RoomKey,
		SenderID:   chatEvt.SenderID,
		SenderName: chatEvt.SenderName,
		Preview:    preview,
		Timestamp:  chatEvt.Timestamp,
	})
}

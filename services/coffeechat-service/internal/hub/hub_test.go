package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testHub(buffer int) *Hub {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), buffer)
}

func receive(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case payload := <-s.Outbound():
		var evt Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishFIFO(t *testing.T) {
	h := testHub(8)
	s := h.Subscribe("u1", "")

	for _, body := range []string{"first", "second", "third"} {
		if !h.Publish("u1", Event{Type: EventChat, Body: body}) {
			t.Fatalf("publish %q failed", body)
		}
	}
	for _, want := range []string{"first", "second", "third"} {
		if got := receive(t, s).Body; got != want {
			t.Fatalf("out of order: got %q, want %q", got, want)
		}
	}
}

func TestPublishToOfflineUser(t *testing.T) {
	h := testHub(8)
	if h.Publish("nobody", Event{Type: EventChat}) {
		t.Fatal("publish to offline user should report not delivered")
	}
}

func TestLastConnectWins(t *testing.T) {
	h := testHub(8)
	s1 := h.Subscribe("u1", "")
	s2 := h.Subscribe("u1", "")

	select {
	case <-s1.Done():
	case <-time.After(time.Second):
		t.Fatal("first session should be closed when superseded")
	}

	if !h.Publish("u1", Event{Type: EventChat, Body: "hi"}) {
		t.Fatal("publish after reconnect failed")
	}
	if got := receive(t, s2).Body; got != "hi" {
		t.Fatalf("event went to the wrong session: %q", got)
	}
	select {
	case <-s2.Done():
		t.Fatal("second session must stay live")
	default:
	}
}

func TestUnsubscribeSupersededDoesNotEvictSuccessor(t *testing.T) {
	h := testHub(8)
	s1 := h.Subscribe("u1", "")
	_ = h.Subscribe("u1", "")

	h.Unsubscribe(s1)
	if !h.Connected("u1") {
		t.Fatal("unsubscribing a stale session evicted the live one")
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := testHub(1)
	h.Subscribe("u1", "")

	if !h.Publish("u1", Event{Type: EventChat, Body: "kept"}) {
		t.Fatal("first publish should be enqueued")
	}

	done := make(chan bool, 1)
	go func() {
		done <- h.Publish("u1", Event{Type: EventChat, Body: "dropped"})
	}()
	select {
	case delivered := <-done:
		if delivered {
			t.Fatal("publish into a full buffer should drop")
		}
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
}

func TestPublishChatDeliversToBothParties(t *testing.T) {
	h := testHub(8)
	sender := h.Subscribe("alice", "")
	receiver := h.Subscribe("bob", "")

	h.PublishChat(Event{
		Type:       EventChat,
		MessageID:  "m1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Body:       "coffee at 3?",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}, "coffee at 3?")

	if got := receive(t, sender); got.Type != EventChat || got.MessageID != "m1" {
		t.Fatalf("sender echo missing: %+v", got)
	}
	if got := receive(t, receiver); got.Type != EventChat {
		t.Fatalf("receiver chat event missing: %+v", got)
	}
	if got := receive(t, receiver); got.Type != EventChatNotification || got.Preview != "coffee at 3?" {
		t.Fatalf("unread notification missing: %+v", got)
	}
}

func TestPublishChatSuppressesBadgeForFocusedPeer(t *testing.T) {
	h := testHub(8)
	h.Subscribe("alice", "")
	receiver := h.Subscribe("bob", "alice")

	h.PublishChat(Event{
		Type:       EventChat,
		MessageID:  "m2",
		SenderID:   "alice",
		ReceiverID: "bob",
		Body:       "hey",
	}, "hey")

	if got := receive(t, receiver); got.Type != EventChat {
		t.Fatalf("raw chat event must always be delivered: %+v", got)
	}
	select {
	case payload := <-receiver.Outbound():
		t.Fatalf("unexpected extra event while focused: %s", payload)
	default:
	}

	// After switching focus away the badge comes back.
	receiver.SetFocusedPeer("")
	h.PublishChat(Event{
		Type:       EventChat,
		MessageID:  "m3",
		SenderID:   "alice",
		ReceiverID: "bob",
		Body:       "still there?",
	}, "still there?")

	if got := receive(t, receiver); got.Type != EventChat {
		t.Fatalf("expected chat event, got %+v", got)
	}
	if got := receive(t, receiver); got.Type != EventChatNotification {
		t.Fatalf("expected notification after unfocus, got %+v", got)
	}
}

package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

func testBooking(status model.BookingStatus) model.Booking {
	return model.Booking{
		ID:          "bk-1",
		SlotID:      "slot-1",
		RequesterID: "requester",
		OwnerID:     "owner",
		Status:      status,
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name     string
		status   model.BookingStatus
		actor    string
		action   Action
		wantNext model.BookingStatus
		wantErr  error
	}{
		{"owner confirms requested", model.StatusRequested, "owner", ActionConfirm, model.StatusConfirmed, nil},
		{"requester cannot confirm", model.StatusRequested, "requester", ActionConfirm, "", model.ErrForbidden},
		{"stranger cannot confirm", model.StatusRequested, "someone", ActionConfirm, "", model.ErrForbidden},
		{"second confirm rejected", model.StatusConfirmed, "owner", ActionConfirm, "", model.ErrInvalidTransition},
		{"confirm after cancel rejected", model.StatusCancelled, "owner", ActionConfirm, "", model.ErrInvalidTransition},
		{"requester cancels requested", model.StatusRequested, "requester", ActionCancel, model.StatusCancelled, nil},
		{"owner cancels requested", model.StatusRequested, "owner", ActionCancel, model.StatusCancelled, nil},
		{"requester cancels confirmed", model.StatusConfirmed, "requester", ActionCancel, model.StatusCancelled, nil},
		{"stranger cannot cancel", model.StatusRequested, "someone", ActionCancel, "", model.ErrForbidden},
		{"cancel after cancel rejected", model.StatusCancelled, "owner", ActionCancel, "", model.ErrInvalidTransition},
		{"cancel after completed rejected", model.StatusCompleted, "requester", ActionCancel, "", model.ErrInvalidTransition},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Decide(testBooking(tc.status), tc.actor, tc.action)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Decide error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if next != tc.wantNext {
				t.Fatalf("Decide next = %s, want %s", next, tc.wantNext)
			}
		})
	}
}

func TestDecideAuthorizationBeforeState(t *testing.T) {
	// A wrong actor on an already-terminal booking must see Forbidden, not
	// the transition error; authorization is checked first.
	_, err := Decide(testBooking(model.StatusCancelled), "someone", ActionCancel)
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestParseAction(t *testing.T) {
	if _, err := ParseAction("confirm"); err != nil {
		t.Fatalf("ParseAction(confirm) failed: %v", err)
	}
	if _, err := ParseAction("cancel"); err != nil {
		t.Fatalf("ParseAction(cancel) failed: %v", err)
	}
	if _, err := ParseAction("complete"); err == nil {
		t.Fatal("completed must not be reachable through user actions")
	}
	if _, err := ParseAction(""); err == nil {
		t.Fatal("empty action must be rejected")
	}
}

func TestCompletionDue(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	b := testBooking(model.StatusConfirmed)
	b.EndUTC = now.Add(-time.Minute)
	if !CompletionDue(b, now) {
		t.Fatal("elapsed confirmed booking should be due for completion")
	}

	b.EndUTC = now.Add(time.Minute)
	if CompletionDue(b, now) {
		t.Fatal("booking still in progress must not complete")
	}

	b = testBooking(model.StatusRequested)
	b.EndUTC = now.Add(-time.Hour)
	if CompletionDue(b, now) {
		t.Fatal("only confirmed bookings complete")
	}
}

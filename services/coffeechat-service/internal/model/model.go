package model

import "time"

type BookingStatus string

const (
	StatusRequested BookingStatus = "requested"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// Terminal reports whether no further user-driven transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// TimeSlot is an owner-declared open interval. Start/End are always UTC;
// viewers see them projected into their own zone at read time.
type TimeSlot struct {
	ID              string
	OwnerID         string
	StartUTC        time.Time
	EndUTC          time.Time
	DurationMinutes int
	GeneratedAt     time.Time
	Removed         bool
}

type Booking struct {
	ID          string
	SlotID      string
	RequesterID string
	OwnerID     string
	Status      BookingStatus
	MeetingID   string
	MeetingLink string
	CreatedAt   time.Time
	// Denormalized from the slot for list views.
	StartUTC        time.Time
	EndUTC          time.Time
	DurationMinutes int
}

type ChatMessage struct {
	ID         string
	RoomKey    string
	SenderID   string
	ReceiverID string
	Body       string
	SentAt     time.Time
	Read       bool
}

// Profile is the slice of the external profile service this core reads:
// timezone and slot-duration preferences plus display data for labels.
type Profile struct {
	UserID              string
	DisplayName         string
	Zone                string // IANA name, e.g. "America/Los_Angeles"
	SlotDurationMinutes int
	BlockEarlyHours     bool
	ImportCalendar      bool
}

// CalendarBusyInterval is an imported busy block from an external calendar.
// Availability generation treats these as non-bookable.
type CalendarBusyInterval struct {
	ID         string
	UserID     string
	StartUTC   time.Time
	EndUTC     time.Time
	ImportedAt time.Time
}

// BookingEvent is emitted exactly once per accepted state transition and fans
// out to both parties through the notification hub.
type BookingEvent struct {
	BookingID      string        `json:"booking_id"`
	SlotID         string        `json:"slot_id"`
	Status         BookingStatus `json:"status"`
	ActorID        string        `json:"actor_id"`
	RequesterID    string        `json:"requester_id"`
	OwnerID        string        `json:"owner_id"`
	MeetingLink    string        `json:"meeting_link,omitempty"`
	StartUTC       time.Time     `json:"start_utc"`
	EndUTC         time.Time     `json:"end_utc"`
	TransitionedAt time.Time     `json:"transitioned_at"`
}

// CounterpartyOf returns the other participant from the perspective of userID.
func (e BookingEvent) CounterpartyOf(userID string) string {
	if userID == e.RequesterID {
		return e.OwnerID
	}
	return e.RequesterID
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/booking"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/meeting"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/outbox"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

type BookingHandler struct {
	repo       *storage.BookingRepository
	slots      *storage.SlotRepository
	outboxRepo *outbox.Repository
	meet       *meeting.Client
	logger     *slog.Logger
}

func NewBookingHandler(repo *storage.BookingRepository, slots *storage.SlotRepository, outboxRepo *outbox.Repository, meet *meeting.Client, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		slots:      slots,
		outboxRepo: outboxRepo,
		meet:       meet,
		logger:     logger,
	}
}

type createBookingRequest struct {
	SlotID string `json:"slot_id"`
}

type createBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type actionRequest struct {
	BookingID string `json:"booking_id"`
	Action    string `json:"action"`
}

type actionResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	MeetingLink string `json:"meeting_link,omitempty"`
}

type bookingItem struct {
	BookingID      string `json:"booking_id"`
	SlotID         string `json:"slot_id"`
	CounterpartyID string `json:"counterparty_id"`
	Status         string `json:"status"`
	StartUTC       string `json:"start_utc"`
	EndUTC         string `json:"end_utc"`
	MeetingLink    string `json:"meeting_link,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Create requests a booking on an open slot. The partial unique index on
// active bookings is the arbiter under concurrency: of two simultaneous
// requests for one slot exactly one insert survives, the other maps to 409.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	if req.SlotID == "" {
		http.Error(w, "slot_id is required", http.StatusBadRequest)
		return
	}

	requesterID := callerID(r)
	ctx := r.Context()

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, err := h.repo.LockIdempotencyKey(ctx, tx, requesterID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		// Finalized is the only gate: a retry that raced the original request
		// sees its committed record here and must replay it, not re-book.
		if rec.Finalized() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	slot, err := h.slots.GetForUpdate(ctx, tx, req.SlotID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeDomainError(w, model.ErrNotFound)
			return
		}
		http.Error(w, "failed to load slot", http.StatusInternalServerError)
		return
	}
	if slot.Removed {
		writeDomainError(w, model.ErrNotFound)
		return
	}
	if slot.OwnerID == requesterID {
		writeDomainError(w, model.ErrInvalidSelf)
		return
	}
	if !slot.StartUTC.After(time.Now().UTC()) {
		writeDomainError(w, model.ErrConflict)
		return
	}

	id, err := h.repo.Insert(ctx, tx, slot.ID, requesterID, slot.OwnerID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			writeDomainError(w, model.ErrConflict)
			return
		}
		h.logger.Error("booking insert failed", "err", err, "slot_id", slot.ID)
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}

	evt := model.BookingEvent{
		BookingID:      id,
		SlotID:         slot.ID,
		Status:         model.StatusRequested,
		ActorID:        requesterID,
		RequesterID:    requesterID,
		OwnerID:        slot.OwnerID,
		StartUTC:       slot.StartUTC.UTC(),
		EndUTC:         slot.EndUTC.UTC(),
		TransitionedAt: time.Now().UTC(),
	}
	if err := h.insertEvent(ctx, tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{BookingID: id, Status: string(model.StatusRequested)})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, requesterID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

// Action confirms or cancels a booking on behalf of the caller. The
// transition is applied with a conditional update keyed on the observed
// status; losing a race surfaces as 409 rather than silently re-applying.
func (h *BookingHandler) Action(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	action, err := booking.ParseAction(strings.TrimSpace(req.Action))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id is required", http.StatusBadRequest)
		return
	}

	actorID := callerID(r)
	ctx := r.Context()

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := h.repo.GetForUpdate(ctx, tx, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeDomainError(w, model.ErrNotFound)
			return
		}
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	next, err := booking.Decide(b, actorID, action)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	applied, err := h.repo.ApplyTransition(ctx, tx, b.ID, b.Status, next)
	if err != nil {
		http.Error(w, "failed to apply transition", http.StatusInternalServerError)
		return
	}
	if !applied {
		// Another writer moved the booking first. Re-read and report the
		// refusal against current state; if the action would still be legal
		// (say cancel racing a confirm) the client retries against it.
		current, rerr := h.repo.Get(ctx, b.ID)
		if rerr == nil {
			if _, derr := booking.Decide(current, actorID, action); derr != nil {
				writeDomainError(w, derr)
				return
			}
		}
		writeDomainError(w, model.ErrConflict)
		return
	}

	evt := model.BookingEvent{
		BookingID:      b.ID,
		SlotID:         b.SlotID,
		Status:         next,
		ActorID:        actorID,
		RequesterID:    b.RequesterID,
		OwnerID:        b.OwnerID,
		MeetingLink:    b.MeetingLink,
		StartUTC:       b.StartUTC.UTC(),
		EndUTC:         b.EndUTC.UTC(),
		TransitionedAt: time.Now().UTC(),
	}
	if err := h.insertEvent(ctx, tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	// The Google round-trip runs after commit so the booking's row lock is
	// never held across an external call. Confirmation stands without a link
	// when minting fails; the owner can share one manually.
	meetingLink := b.MeetingLink
	if next == model.StatusConfirmed && h.meet != nil {
		meetingID, link, merr := h.meet.CreateMeet(ctx, b, "Coffee chat")
		if merr != nil {
			h.logger.Warn("meet creation failed", "err", merr, "booking_id", b.ID)
		} else {
			if err := h.repo.SetMeeting(ctx, b.ID, meetingID, link); err != nil {
				h.logger.Warn("meeting link store failed", "err", err, "booking_id", b.ID)
			}
			meetingLink = link
		}
	}

	writeJSON(w, http.StatusOK, actionResponse{
		BookingID:   b.ID,
		Status:      string(next),
		MeetingLink: meetingLink,
	})
}

// ListSent returns bookings the caller requested.
func (h *BookingHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.repo.ListSent)
}

// ListReceived returns bookings on the caller's own slots.
func (h *BookingHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.repo.ListReceived)
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) ([]model.Booking, error)) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := callerID(r)
	ctx := r.Context()

	bookings, err := fetch(ctx, userID)
	if err != nil {
		h.logger.Error("booking list failed", "err", err, "user_id", userID)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		if booking.CompletionDue(b, now) {
			if h.promoteCompleted(ctx, b, now) {
				b.Status = model.StatusCompleted
			}
		}
		counterparty := b.OwnerID
		if userID == b.OwnerID {
			counterparty = b.RequesterID
		}
		items = append(items, bookingItem{
			BookingID:      b.ID,
			SlotID:         b.SlotID,
			CounterpartyID: counterparty,
			Status:         string(b.Status),
			StartUTC:       b.StartUTC.UTC().Format(time.RFC3339),
			EndUTC:         b.EndUTC.UTC().Format(time.RFC3339),
			MeetingLink:    b.MeetingLink,
			CreatedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string][]bookingItem{"bookings": items})
}

// promoteCompleted applies the confirmed->completed transition for an elapsed
// booking. The conditional update keeps this race-safe against the sweep
// worker and concurrent readers; only the winner emits the event.
func (h *BookingHandler) promoteCompleted(ctx context.Context, b model.Booking, now time.Time) bool {
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.logger.Warn("completion promote begin failed", "err", err, "booking_id", b.ID)
		return false
	}
	defer func() { _ = tx.Rollback(ctx) }()

	applied, err := h.repo.ApplyTransition(ctx, tx, b.ID, model.StatusConfirmed, model.StatusCompleted)
	if err != nil {
		h.logger.Warn("completion promote failed", "err", err, "booking_id", b.ID)
		return false
	}
	if !applied {
		return false
	}

	evt := model.BookingEvent{
		BookingID:      b.ID,
		SlotID:         b.SlotID,
		Status:         model.StatusCompleted,
		RequesterID:    b.RequesterID,
		OwnerID:        b.OwnerID,
		MeetingLink:    b.MeetingLink,
		StartUTC:       b.StartUTC.UTC(),
		EndUTC:         b.EndUTC.UTC(),
		TransitionedAt: now,
	}
	if err := h.insertEvent(ctx, tx, evt); err != nil {
		h.logger.Warn("completion event write failed", "err", err, "booking_id", b.ID)
		return false
	}
	if err := tx.Commit(ctx); err != nil {
		h.logger.Warn("completion promote commit failed", "err", err, "booking_id", b.ID)
		return false
	}
	return true
}

func (h *BookingHandler) insertEvent(ctx context.Context, tx pgx.Tx, evt model.BookingEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   evt.BookingID,
		EventType:     outbox.BookingTopic,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return nil
}

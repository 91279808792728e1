package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coffeechat-app/coffeechat/libs/db"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const bookingColumns = `
	b.id, b.slot_id, b.requester_id, b.owner_id, b.status,
	COALESCE(b.meeting_id, ''), COALESCE(b.meeting_link, ''), b.created_at,
	s.start_utc, s.end_utc, s.duration_minutes`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.SlotID, &b.RequesterID, &b.OwnerID, &b.Status,
		&b.MeetingID, &b.MeetingLink, &b.CreatedAt,
		&b.StartUTC, &b.EndUTC, &b.DurationMinutes,
	)
	return b, err
}

// Insert creates a booking in the requested state. The partial unique index
// on bookings(slot_id) WHERE status <> 'cancelled' makes the conflict check
// and the insert a single atomic operation: of two concurrent requests for
// the same slot exactly one insert succeeds, the other fails with 23505.
func (r *BookingRepository) Insert(ctx context.Context, tx pgx.Tx, slotID, requesterID, ownerID string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings (slot_id, requester_id, owner_id, status)
		VALUES ($1, $2, $3, 'requested')
		RETURNING id
	`, slotID, requesterID, ownerID).Scan(&id)
	return id, err
}

func (r *BookingRepository) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.id = $1
	`, bookingID))
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.id = $1
		FOR UPDATE OF b
	`, bookingID))
}

// ApplyTransition moves a booking from an observed status to the next one.
// The status predicate is the optimistic-concurrency check: when another
// writer got there first zero rows match, applied is false, and the caller
// re-reads to report the refusal against current state.
func (r *BookingRepository) ApplyTransition(ctx context.Context, tx pgx.Tx, bookingID string, from, to model.BookingStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $3
		WHERE id = $1 AND status = $2
	`, bookingID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetMeeting persists a minted conference link. It runs on the pool, after
// the confirm transaction commits, so no booking lock spans the Google call.
func (r *BookingRepository) SetMeeting(ctx context.Context, bookingID, meetingID, meetingLink string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET meeting_id = $2,
			meeting_link = $3
		WHERE id = $1
	`, bookingID, meetingID, meetingLink)
	return err
}

func (r *BookingRepository) listByParty(ctx context.Context, column, userID string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.`+column+` = $1
		ORDER BY b.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ListSent returns bookings the user requested, newest first.
func (r *BookingRepository) ListSent(ctx context.Context, userID string) ([]model.Booking, error) {
	return r.listByParty(ctx, "requester_id", userID)
}

// ListReceived returns bookings on the user's own slots, newest first.
func (r *BookingRepository) ListReceived(ctx context.Context, userID string) ([]model.Booking, error) {
	return r.listByParty(ctx, "owner_id", userID)
}

// ClaimOverdueConfirmed locks a batch of confirmed bookings whose end instant
// has passed. SKIP LOCKED keeps concurrent sweepers and lazy read-path
// promotion from contending on the same rows.
func (r *BookingRepository) ClaimOverdueConfirmed(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.status = 'confirmed' AND s.end_utc < $1
		ORDER BY s.end_utc ASC
		LIMIT $2
		FOR UPDATE OF b SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type IdempotencyRecord struct {
	ActorID         string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

// Finalized reports whether a prior request completed and stored its
// response. The claim row inserted at lock time still has status_code 0.
func (rec IdempotencyRecord) Finalized() bool {
	return rec.StatusCode > 0
}

// LockIdempotencyKey claims or re-reads the idempotency record under FOR
// UPDATE. A retry racing the first request blocks on its row lock here and
// observes the finalized record once that request commits, whichever of the
// two select paths it arrives through.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, actorID, key string) (IdempotencyRecord, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, actorID, key)
	if err == nil {
		return rec, nil
	}
	if !IsNotFound(err) {
		return IdempotencyRecord{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (actor_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (actor_id, idempotency_key) DO NOTHING
	`, actorID, key)
	if err != nil {
		return IdempotencyRecord{}, err
	}

	return r.selectIdempotencyForUpdate(ctx, tx, actorID, key)
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, actorID, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE actor_id = $1 AND idempotency_key = $2
	`, actorID, key, bookingID, statusCode, response)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, actorID, key string) (IdempotencyRecord, error) {
	return scanIdempotency(tx.QueryRow(ctx, `
		SELECT actor_id, idempotency_key, booking_id, status_code, response_payload
		FROM booking_idempotency_keys
		WHERE actor_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, actorID, key))
}

// scanIdempotency reads response_payload straight into bytes; the column is
// BYTEA and must not round-trip through a textual encoding. NULL scans as nil.
func scanIdempotency(row pgx.Row) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := row.Scan(
		&rec.ActorID,
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&rec.ResponsePayload,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	return rec, nil
}

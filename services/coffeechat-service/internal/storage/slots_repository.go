package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coffeechat-app/coffeechat/libs/db"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/availability"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

type SlotRepository struct {
	pool *db.Pool
}

func NewSlotRepository(pool *db.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

func (r *SlotRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const slotColumns = `id, owner_id, start_utc, end_utc, duration_minutes, generated_at, removed`

func scanSlot(row pgx.Row) (model.TimeSlot, error) {
	var s model.TimeSlot
	err := row.Scan(&s.ID, &s.OwnerID, &s.StartUTC, &s.EndUTC, &s.DurationMinutes, &s.GeneratedAt, &s.Removed)
	return s, err
}

// ListOpen returns the owner's bookable slots: not removed, not attached to a
// non-cancelled booking, ordered by UTC start.
func (r *SlotRepository) ListOpen(ctx context.Context, ownerID string) ([]model.TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE owner_id = $1
			AND removed = FALSE
			AND NOT EXISTS (
				SELECT 1 FROM bookings b
				WHERE b.slot_id = s.id AND b.status <> 'cancelled'
			)
		ORDER BY start_utc ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// ListOwned returns the owner's upcoming slots including removed ones, for
// the owner's own management view.
func (r *SlotRepository) ListOwned(ctx context.Context, ownerID string, from time.Time) ([]model.TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE owner_id = $1
			AND start_utc >= $2
		ORDER BY start_utc ASC
	`, ownerID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// ListAll returns every slot row for the owner, including removed ones.
// Used by the save-availability reconciliation.
func (r *SlotRepository) ListAll(ctx context.Context, tx pgx.Tx, ownerID string) ([]model.TimeSlot, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE owner_id = $1
		ORDER BY start_utc ASC
		FOR UPDATE
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *SlotRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, slotID string) (model.TimeSlot, error) {
	return scanSlot(tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, slotID))
}

func (r *SlotRepository) SetRemoved(ctx context.Context, tx pgx.Tx, slotID string, removed bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE slots
		SET removed = $2,
			generated_at = now()
		WHERE id = $1
	`, slotID, removed)
	return err
}

// HasActiveBooking reports whether a non-cancelled booking references the slot.
func (r *SlotRepository) HasActiveBooking(ctx context.Context, tx pgx.Tx, slotID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE slot_id = $1 AND status <> 'cancelled'
		)
	`, slotID).Scan(&exists)
	return exists, err
}

// InsertGenerated persists freshly expanded candidate slots. Conflicts on
// (owner_id, start_utc, end_utc) are skipped so regeneration never duplicates
// a surviving row.
func (r *SlotRepository) InsertGenerated(ctx context.Context, tx pgx.Tx, ownerID string, intervals []availability.Interval, durationMinutes int) error {
	for _, iv := range intervals {
		_, err := tx.Exec(ctx, `
			INSERT INTO slots (owner_id, start_utc, end_utc, duration_minutes, generated_at, removed)
			VALUES ($1, $2, $3, $4, now(), FALSE)
			ON CONFLICT (owner_id, start_utc, end_utc) DO NOTHING
		`, ownerID, iv.Start, iv.End, durationMinutes)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteOpenUnbooked clears regenerable rows: not removed by the owner and not
// referenced by an active booking. Mirrors the daily refresh in the sweep
// worker, which deletes and re-expands the coming week.
func (r *SlotRepository) DeleteOpenUnbooked(ctx context.Context, tx pgx.Tx, ownerID string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM slots s
		WHERE owner_id = $1
			AND removed = FALSE
			AND NOT EXISTS (
				SELECT 1 FROM bookings b
				WHERE b.slot_id = s.id AND b.status <> 'cancelled'
			)
	`, ownerID)
	return err
}

// TakenKeys returns the interval keys generation must not recreate: slots the
// owner removed plus slots attached to an active booking.
func (r *SlotRepository) TakenKeys(ctx context.Context, tx pgx.Tx, ownerID string) (map[availability.Key]struct{}, error) {
	rows, err := tx.Query(ctx, `
		SELECT start_utc, end_utc
		FROM slots s
		WHERE owner_id = $1
			AND (removed = TRUE OR EXISTS (
				SELECT 1 FROM bookings b
				WHERE b.slot_id = s.id AND b.status <> 'cancelled'
			))
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[availability.Key]struct{})
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		taken[availability.KeyOf(availability.Interval{Start: start, End: end})] = struct{}{}
	}
	return taken, rows.Err()
}

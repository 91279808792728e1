package storage

import (
	"context"
	"time"

	"github.com/coffeechat-app/coffeechat/libs/db"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/availability"
)

// CalendarRepository stores busy intervals imported from external calendars.
// The import itself runs out-of-band; availability generation only reads.
type CalendarRepository struct {
	pool *db.Pool
}

func NewCalendarRepository(pool *db.Pool) *CalendarRepository {
	return &CalendarRepository{pool: pool}
}

// ReplaceBusy swaps the user's imported busy set atomically so a partial
// import never leaves a mix of old and new intervals.
func (r *CalendarRepository) ReplaceBusy(ctx context.Context, userID string, intervals []availability.Interval) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM calendar_busy WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, iv := range intervals {
		_, err := tx.Exec(ctx, `
			INSERT INTO calendar_busy (user_id, start_utc, end_utc, imported_at)
			VALUES ($1, $2, $3, now())
		`, userID, iv.Start, iv.End)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListBusyOverlapping returns imported intervals intersecting [start, end).
func (r *CalendarRepository) ListBusyOverlapping(ctx context.Context, userID string, start, end time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_utc, end_utc
		FROM calendar_busy
		WHERE user_id = $1 AND start_utc < $3 AND end_utc > $2
		ORDER BY start_utc ASC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

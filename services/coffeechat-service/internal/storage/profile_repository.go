package storage

import (
	"context"

	"github.com/coffeechat-app/coffeechat/libs/db"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

// ProfileRepository reads the profile service's table. Profiles are owned by
// an external collaborator; this core only consumes timezone and duration
// preferences plus display names, and never writes.
type ProfileRepository struct {
	pool *db.Pool
}

func NewProfileRepository(pool *db.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) Get(ctx context.Context, userID string) (model.Profile, error) {
	var p model.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, COALESCE(display_name, ''), COALESCE(zone, 'UTC'),
			slot_duration_minutes, block_early_hours, import_calendar
		FROM user_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.DisplayName, &p.Zone, &p.SlotDurationMinutes, &p.BlockEarlyHours, &p.ImportCalendar)
	return p, err
}

func (r *ProfileRepository) TimezoneOf(ctx context.Context, userID string) (string, error) {
	p, err := r.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.Zone, nil
}

// ListGenerationEnabled returns the users whose availability the daily worker
// should regenerate.
func (r *ProfileRepository) ListGenerationEnabled(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, COALESCE(display_name, ''), COALESCE(zone, 'UTC'),
			slot_duration_minutes, block_early_hours, import_calendar
		FROM user_profiles
		WHERE generation_enabled = TRUE
		ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Zone, &p.SlotDurationMinutes, &p.BlockEarlyHours, &p.ImportCalendar); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

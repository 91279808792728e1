// Package calendarsync mirrors busy intervals from connected Google
// calendars into Postgres, where slot generation reads them. Generation
// never calls Google inline; it only ever sees the last imported snapshot.
package calendarsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/meeting"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

// importHorizon bounds how far ahead busy intervals are mirrored. Slightly
// wider than the seven-day slot window so generation near the window edge
// still has coverage.
const importHorizon = 8 * 24 * time.Hour

type Syncer struct {
	meet     *meeting.Client
	profiles *storage.ProfileRepository
	calendar *storage.CalendarRepository
	logger   *slog.Logger
	every    time.Duration
}

func NewSyncer(meet *meeting.Client, profiles *storage.ProfileRepository, calendar *storage.CalendarRepository, logger *slog.Logger, every time.Duration) *Syncer {
	if every <= 0 {
		every = 30 * time.Minute
	}
	return &Syncer{
		meet:     meet,
		profiles: profiles,
		calendar: calendar,
		logger:   logger,
		every:    every,
	}
}

func (s *Syncer) Run(ctx context.Context) {
	if s.meet == nil {
		s.logger.Warn("calendar sync disabled (google calendar not configured)")
		return
	}

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncAll(ctx)
		}
	}
}

func (s *Syncer) syncAll(ctx context.Context) {
	profiles, err := s.profiles.ListGenerationEnabled(ctx)
	if err != nil {
		s.logger.Error("listing profiles for calendar sync failed", "err", err)
		return
	}

	now := time.Now().UTC()
	var synced int
	for _, p := range profiles {
		if ctx.Err() != nil {
			return
		}
		if !p.ImportCalendar {
			continue
		}

		busy, err := s.meet.FetchBusy(ctx, p.UserID, now, now.Add(importHorizon))
		if err != nil {
			if errors.Is(err, meeting.ErrNotConnected) {
				continue
			}
			s.logger.Warn("busy fetch failed", "err", err, "user_id", p.UserID)
			continue
		}
		if err := s.calendar.ReplaceBusy(ctx, p.UserID, busy); err != nil {
			s.logger.Warn("busy store failed", "err", err, "user_id", p.UserID)
			continue
		}
		synced++
	}
	s.logger.Info("calendar sync finished", "users", synced)
}

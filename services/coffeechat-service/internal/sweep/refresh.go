package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/scheduling"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

// AvailabilityRefresher rebuilds every opted-in user's rolling week of slots.
// Yesterday's unbooked leftovers are pruned and the window re-expanded, so
// the seven-day horizon advances without the user touching anything.
type AvailabilityRefresher struct {
	engine   *scheduling.Engine
	profiles *storage.ProfileRepository
	logger   *slog.Logger
	every    time.Duration
}

func NewAvailabilityRefresher(engine *scheduling.Engine, profiles *storage.ProfileRepository, logger *slog.Logger, every time.Duration) *AvailabilityRefresher {
	if every <= 0 {
		every = 24 * time.Hour
	}
	return &AvailabilityRefresher{
		engine:   engine,
		profiles: profiles,
		logger:   logger,
		every:    every,
	}
}

func (r *AvailabilityRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *AvailabilityRefresher) refreshAll(ctx context.Context) {
	profiles, err := r.profiles.ListGenerationEnabled(ctx)
	if err != nil {
		r.logger.Error("listing generation-enabled profiles failed", "err", err)
		return
	}

	now := time.Now().UTC()
	var refreshed int
	for _, p := range profiles {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.engine.Regenerate(ctx, p.UserID, now, true); err != nil {
			// One user's bad timezone or busy calendar must not stall the rest.
			r.logger.Warn("availability refresh failed", "err", err, "user_id", p.UserID)
			continue
		}
		refreshed++
	}
	r.logger.Info("availability refresh finished", "users", refreshed, "total", len(profiles))
}

// Package scheduling turns stored slot rows into viewer-facing availability
// and reconciles the owner's edits against live bookings.
package scheduling

import (
	"context"
	"log/slog"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/availability"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/timezone"
)

// earlyHoursEnd bounds the owner-local morning hours hidden from viewers
// when the block-early-hours preference is on: slots starting before 8 AM
// on the owner's clock are not offered.
const earlyHoursEnd = 8

type Engine struct {
	slots    *storage.SlotRepository
	profiles *storage.ProfileRepository
	calendar *storage.CalendarRepository
	logger   *slog.Logger
}

func NewEngine(slots *storage.SlotRepository, profiles *storage.ProfileRepository, calendar *storage.CalendarRepository, logger *slog.Logger) *Engine {
	return &Engine{
		slots:    slots,
		profiles: profiles,
		calendar: calendar,
		logger:   logger,
	}
}

type SlotView struct {
	SlotID   string `json:"slot_id"`
	StartUTC string `json:"start_utc"`
	EndUTC   string `json:"end_utc"`
	Label    string `json:"label"`
	Removed  bool   `json:"removed,omitempty"`
	Booked   bool   `json:"booked,omitempty"`
}

type DayView struct {
	Date  string     `json:"date"`
	Slots []SlotView `json:"slots"`
}

// ListAvailability returns the owner's open slots grouped by calendar day in
// the viewer's timezone. Every slot appears in exactly one group, keyed by
// the day its start instant falls on over there; a viewer west of the owner
// can legitimately see a slot a day earlier than the owner does.
// Returns model.ErrNotFound when nothing is visible.
func (e *Engine) ListAvailability(ctx context.Context, ownerID, viewerID string, now time.Time) ([]DayView, error) {
	ownerProfile, err := e.profiles.Get(ctx, ownerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	viewerZone := "UTC"
	if tz, err := e.profiles.TimezoneOf(ctx, viewerID); err == nil {
		viewerZone = tz
	}
	loc := timezone.LoadZone(viewerZone)

	slots, err := e.slots.ListOpen(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	ownerLoc := timezone.LoadZone(ownerProfile.Zone)
	visible := slots[:0]
	for _, s := range slots {
		if !s.StartUTC.After(now) {
			continue
		}
		if ownerProfile.BlockEarlyHours && s.StartUTC.In(ownerLoc).Hour() < earlyHoursEnd {
			continue
		}
		visible = append(visible, s)
	}
	if len(visible) == 0 {
		return nil, model.ErrNotFound
	}

	groups := timezone.GroupByLocalDate(visible, loc)
	days := make([]DayView, 0, len(groups))
	for _, date := range timezone.SortedDates(groups) {
		day := DayView{Date: date.String()}
		for _, s := range groups[date] {
			day.Slots = append(day.Slots, SlotView{
				SlotID:   s.ID,
				StartUTC: s.StartUTC.UTC().Format(time.RFC3339),
				EndUTC:   s.EndUTC.UTC().Format(time.RFC3339),
				Label:    timezone.FormatRange(s, loc),
			})
		}
		days = append(days, day)
	}
	return days, nil
}

// OwnerSlots is the owner's management view: upcoming slots in the owner's
// own timezone, removed and booked ones included so they can be toggled.
func (e *Engine) OwnerSlots(ctx context.Context, ownerID string, now time.Time) ([]DayView, error) {
	profile, err := e.profiles.Get(ctx, ownerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	loc := timezone.LoadZone(profile.Zone)

	slots, err := e.slots.ListOwned(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}

	booked := make(map[string]bool, len(slots))
	tx, err := e.slots.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, s := range slots {
		has, err := e.slots.HasActiveBooking(ctx, tx, s.ID)
		if err != nil {
			return nil, err
		}
		booked[s.ID] = has
	}

	groups := timezone.GroupByLocalDate(slots, loc)
	days := make([]DayView, 0, len(groups))
	for _, date := range timezone.SortedDates(groups) {
		day := DayView{Date: date.String()}
		for _, s := range groups[date] {
			day.Slots = append(day.Slots, SlotView{
				SlotID:   s.ID,
				StartUTC: s.StartUTC.UTC().Format(time.RFC3339),
				EndUTC:   s.EndUTC.UTC().Format(time.RFC3339),
				Label:    timezone.FormatRange(s, loc),
				Removed:  s.Removed,
				Booked:   booked[s.ID],
			})
		}
		days = append(days, day)
	}
	return days, nil
}

// Regenerate expands the owner's next seven days into candidate slots and
// inserts the ones that are neither busy on the imported calendar nor already
// present. With prune set it first clears regenerable rows, which is what the
// daily refresh does; owner-removed and booked slots always survive.
func (e *Engine) Regenerate(ctx context.Context, ownerID string, now time.Time, prune bool) (int, error) {
	profile, err := e.profiles.Get(ctx, ownerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, model.ErrNotFound
		}
		return 0, err
	}

	loc := timezone.LoadZone(profile.Zone)
	windowStart, windowEnd := availability.WeekWindow(now, loc)
	duration := time.Duration(profile.SlotDurationMinutes) * time.Minute
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	candidates := availability.Chunk(windowStart, windowEnd, duration)

	var busy []availability.Interval
	if profile.ImportCalendar {
		busy, err = e.calendar.ListBusyOverlapping(ctx, ownerID, windowStart, windowEnd)
		if err != nil {
			return 0, err
		}
	}

	tx, err := e.slots.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if prune {
		if err := e.slots.DeleteOpenUnbooked(ctx, tx, ownerID); err != nil {
			return 0, err
		}
	}

	taken, err := e.slots.TakenKeys(ctx, tx, ownerID)
	if err != nil {
		return 0, err
	}
	open := availability.Open(candidates, busy, taken)
	if err := e.slots.InsertGenerated(ctx, tx, ownerID, open, int(duration/time.Minute)); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	e.logger.Info("availability regenerated",
		"owner_id", ownerID, "slots", len(open), "pruned", prune)
	return len(open), nil
}

// SaveAvailability reconciles the owner's edited slot selection in one
// transaction. Slots absent from keep are soft-removed, removed slots listed
// in keep come back. Removing a slot with a live booking fails the whole save
// with model.ErrSlotInUse so the client re-renders current state.
func (e *Engine) SaveAvailability(ctx context.Context, ownerID string, keep []string) error {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	tx, err := e.slots.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slots, err := e.slots.ListAll(ctx, tx, ownerID)
	if err != nil {
		return err
	}

	for _, s := range slots {
		_, kept := keepSet[s.ID]
		switch {
		case s.Removed && kept:
			if err := e.slots.SetRemoved(ctx, tx, s.ID, false); err != nil {
				return err
			}
		case !s.Removed && !kept:
			inUse, err := e.slots.HasActiveBooking(ctx, tx, s.ID)
			if err != nil {
				return err
			}
			if inUse {
				return model.ErrSlotInUse
			}
			if err := e.slots.SetRemoved(ctx, tx, s.ID, true); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

// Package sweep runs the periodic maintenance loops: promoting elapsed
// confirmed bookings to completed and refreshing the rolling availability
// window.
package sweep

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/outbox"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

type CompletionSweeper struct {
	repo       *storage.BookingRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	every      time.Duration
	batchSize  int
}

func NewCompletionSweeper(repo *storage.BookingRepository, outboxRepo *outbox.Repository, logger *slog.Logger, every time.Duration, batchSize int) *CompletionSweeper {
	if every <= 0 {
		every = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CompletionSweeper{
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		every:      every,
		batchSize:  batchSize,
	}
}

func (s *CompletionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logger.Error("completion sweep failed", "err", err)
			}
		}
	}
}

// sweep claims a batch of elapsed confirmed bookings and promotes them.
// SKIP LOCKED keeps concurrent replicas and the lazy read-path promotion out
// of each other's way; a booking promoted elsewhere simply isn't claimed.
func (s *CompletionSweeper) sweep(ctx context.Context) error {
	now := time.Now().UTC()

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	claimed, err := s.repo.ClaimOverdueConfirmed(ctx, tx, now, s.batchSize)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return tx.Commit(ctx)
	}

	for _, b := range claimed {
		applied, err := s.repo.ApplyTransition(ctx, tx, b.ID, model.StatusConfirmed, model.StatusCompleted)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}

		payload, err := json.Marshal(model.BookingEvent{
			BookingID:      b.ID,
			SlotID:         b.SlotID,
			Status:         model.StatusCompleted,
			RequesterID:    b.RequesterID,
			OwnerID:        b.OwnerID,
			MeetingLink:    b.MeetingLink,
			StartUTC:       b.StartUTC.UTC(),
			EndUTC:         b.EndUTC.UTC(),
			TransitionedAt: now,
		})
		if err != nil {
			return err
		}
		if err := s.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "booking",
			AggregateID:   b.ID,
			EventType:     outbox.BookingTopic,
			Payload:       payload,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("completed elapsed bookings", "count", len(claimed))
	return nil
}

// Package booking holds the state-machine rules for booking lifecycles.
//
// requested -> {confirmed, cancelled}
// confirmed -> {cancelled, completed}
// cancelled / completed are terminal.
//
// Decide is pure: callers apply the returned status with a conditional update
// so concurrent actions resolve first-writer-wins (see storage.ApplyTransition).
package booking

import (
	"fmt"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
)

func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionConfirm, ActionCancel:
		return Action(raw), nil
	default:
		return "", fmt.Errorf("unknown action %q", raw)
	}
}

// Decide returns the status a booking moves to when actorID performs action,
// or the taxonomy error explaining the refusal. It never mutates b.
func Decide(b model.Booking, actorID string, action Action) (model.BookingStatus, error) {
	switch action {
	case ActionConfirm:
		// Only the slot owner (the non-requesting party) may confirm.
		if actorID != b.OwnerID {
			return "", model.ErrForbidden
		}
		if b.Status != model.StatusRequested {
			return "", model.ErrInvalidTransition
		}
		return model.StatusConfirmed, nil
	case ActionCancel:
		if actorID != b.OwnerID && actorID != b.RequesterID {
			return "", model.ErrForbidden
		}
		if b.Status.Terminal() {
			return "", model.ErrInvalidTransition
		}
		return model.StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

// CompletionDue reports whether a confirmed booking's interval has fully
// elapsed, meaning it should be promoted to completed. Evaluated lazily on
// read and by the sweep worker; user actions never drive this transition.
func CompletionDue(b model.Booking, now time.Time) bool {
	return b.Status == model.StatusConfirmed && now.After(b.EndUTC)
}

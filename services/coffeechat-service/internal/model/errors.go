package model

import "errors"

// Domain error taxonomy. All are recoverable and map to client-facing HTTP
// statuses in the handlers; none should ever take the process down.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("slot already booked")
	ErrForbidden         = errors.New("actor not authorized for this action")
	ErrInvalidTransition = errors.New("booking is not in a state that allows this action")
	ErrInvalidSelf       = errors.New("cannot book your own slot")
	ErrSlotInUse         = errors.New("slot is referenced by an active booking")
)

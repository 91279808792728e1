package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/storage"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrForbidden, http.StatusForbidden},
		{model.ErrConflict, http.StatusConflict},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrSlotInUse, http.StatusConflict},
		{model.ErrInvalidSelf, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

// Two concurrent requests for one slot are decided by the partial unique
// index on active bookings: the loser's insert fails with 23505, which the
// create handler maps to a 409 exactly as traced here.
func TestSlotRaceLossMapsToConflict(t *testing.T) {
	raceErr := fmt.Errorf("insert booking: %w",
		&pgconn.PgError{Code: "23505", ConstraintName: "idx_bookings_slot_active"})
	if !storage.IsUniqueViolation(raceErr) {
		t.Fatalf("expected unique violation, got %v", raceErr)
	}

	rec := httptest.NewRecorder()
	writeDomainError(rec, model.ErrConflict)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

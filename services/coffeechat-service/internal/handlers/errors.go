package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

// statusFor maps domain errors onto HTTP statuses. Unknown errors are
// internal; callers log those before writing.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrSlotInUse):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidSelf):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

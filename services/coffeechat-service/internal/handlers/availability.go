package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/scheduling"
)

type AvailabilityHandler struct {
	engine *scheduling.Engine
	logger *slog.Logger
}

func NewAvailabilityHandler(engine *scheduling.Engine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, logger: logger}
}

type availabilityResponse struct {
	OwnerID string               `json:"owner_id"`
	Days    []scheduling.DayView `json:"days"`
}

// List shows another user's open slots grouped by day in the caller's
// timezone.
func (h *AvailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	days, err := h.engine.ListAvailability(r.Context(), ownerID, callerID(r), time.Now().UTC())
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			h.logger.Error("list availability failed", "err", err, "owner_id", ownerID)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{OwnerID: ownerID, Days: days})
}

// Mine shows the caller's own slots, removed and booked included.
func (h *AvailabilityHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := callerID(r)
	days, err := h.engine.OwnerSlots(r.Context(), userID, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			h.logger.Error("list own slots failed", "err", err, "user_id", userID)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{OwnerID: userID, Days: days})
}

type generateResponse struct {
	Generated int `json:"generated"`
}

// Generate expands the caller's coming week into slots.
func (h *AvailabilityHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := callerID(r)
	n, err := h.engine.Regenerate(r.Context(), userID, time.Now().UTC(), false)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			h.logger.Error("generate availability failed", "err", err, "user_id", userID)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Generated: n})
}

type saveAvailabilityRequest struct {
	KeepSlotIDs []string `json:"keep_slot_ids"`
}

// Save reconciles the caller's edited slot selection. The request carries the
// full set of slot ids to keep; everything else is soft-removed unless booked.
func (h *AvailabilityHandler) Save(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req saveAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	userID := callerID(r)
	if err := h.engine.SaveAvailability(r.Context(), userID, req.KeepSlotIDs); err != nil {
		if !errors.Is(err, model.ErrSlotInUse) {
			h.logger.Error("save availability failed", "err", err, "user_id", userID)
		}
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

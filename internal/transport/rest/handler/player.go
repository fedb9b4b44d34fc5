package handler

import (
	"net/http"

	"pulsequiz/internal/model"
	"pulsequiz/internal/service"
	"pulsequiz/internal/transport/rest/middleware"
)

// PlayerHandler handles player actions
type PlayerHandler struct {
	buzzer *service.BuzzerService
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(buzzer *service.BuzzerService) *PlayerHandler {
	return &PlayerHandler{buzzer: buzzer}
}

// Buzz handles POST /v1/sessions/{pin}/buzz
func (h *PlayerHandler) Buzz(w http.ResponseWriter, r *http.Request) {
	playerID := middleware.GetPlayerID(r.Context())
	pin := middleware.GetPIN(r.Context())
	if playerID == "" || pin == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	won, err := h.buzzer.AttemptBuzz(r.Context(), pin, playerID)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, model.BuzzResponse{
			Won:   false,
			Error: "buzz could not be recorded, try again",
		})
		return
	}
	writeJSON(w, http.StatusOK, model.BuzzResponse{Won: won})
}

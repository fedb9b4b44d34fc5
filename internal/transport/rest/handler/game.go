package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"pulsequiz/internal/model"
	"pulsequiz/internal/service"
)

// GameHandler handles host controls for a running session
type GameHandler struct {
	game    *service.GameService
	scoring *service.ScoringService
}

// NewGameHandler creates a new game handler
func NewGameHandler(game *service.GameService, scoring *service.ScoringService) *GameHandler {
	return &GameHandler{game: game, scoring: scoring}
}

// TracksRequest carries tracks to select or enqueue
type TracksRequest struct {
	Tracks []model.Track `json:"tracks"`
}

// RoundResponse is returned after the host resolves a round
type RoundResponse struct {
	Correct bool          `json:"correct"`
	Player  *model.Player `json:"player,omitempty"`
}

// SelectTracks handles POST /v1/sessions/{pin}/tracks
func (h *GameHandler) SelectTracks(w http.ResponseWriter, r *http.Request) {
	var req TracksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r)(h.game.SelectTracks(r.Context(), mux.Vars(r)["pin"], req.Tracks))
}

// Enqueue handles POST /v1/sessions/{pin}/queue
func (h *GameHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req TracksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r)(h.game.Enqueue(r.Context(), mux.Vars(r)["pin"], req.Tracks))
}

// Trending handles POST /v1/sessions/{pin}/trending
func (h *GameHandler) Trending(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.game.SelectTrending(r.Context(), mux.Vars(r)["pin"]))
}

// Pause handles POST /v1/sessions/{pin}/pause
func (h *GameHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.game.TogglePause(r.Context(), mux.Vars(r)["pin"]))
}

// Advance handles POST /v1/sessions/{pin}/advance
func (h *GameHandler) Advance(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.game.Advance(r.Context(), mux.Vars(r)["pin"]))
}

// End handles POST /v1/sessions/{pin}/end
func (h *GameHandler) End(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.game.End(r.Context(), mux.Vars(r)["pin"]))
}

// Correct handles POST /v1/sessions/{pin}/correct
func (h *GameHandler) Correct(w http.ResponseWriter, r *http.Request) {
	player, err := h.scoring.ResolveCorrect(r.Context(), mux.Vars(r)["pin"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RoundResponse{Correct: true, Player: player})
}

// Incorrect handles POST /v1/sessions/{pin}/incorrect
func (h *GameHandler) Incorrect(w http.ResponseWriter, r *http.Request) {
	if err := h.scoring.ResolveIncorrect(r.Context(), mux.Vars(r)["pin"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RoundResponse{Correct: false})
}

func (h *GameHandler) respond(w http.ResponseWriter, r *http.Request) func(*model.Session, error) {
	return func(session *model.Session, err error) {
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

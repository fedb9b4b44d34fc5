package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"github.com/skip2/go-qrcode"

	"pulsequiz/internal/model"
	"pulsequiz/internal/service"
	"pulsequiz/internal/tracksource"
)

const qrSize = 320

// SessionHandler handles session endpoints
type SessionHandler struct {
	sessions  *service.SessionService
	publicURL string
}

// NewSessionHandler creates a new session handler. publicURL is the base of
// join links; when empty it is derived from the request.
func NewSessionHandler(sessions *service.SessionService, publicURL string) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// CreateSessionRequest is the optional body for creating a session
type CreateSessionRequest struct {
	Playlist []model.Track `json:"playlist,omitempty"`
	Preset   bool          `json:"preset,omitempty"`
}

// JoinRequest is the request body for joining a session
type JoinRequest struct {
	Name string `json:"name"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	playlist := req.Playlist
	if req.Preset && len(playlist) == 0 {
		playlist = tracksource.DefaultPlaylist()
	}

	resp, err := h.sessions.CreateSession(r.Context(), playlist)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /v1/sessions/{pin}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), mux.Vars(r)["pin"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Players handles GET /v1/sessions/{pin}/players
func (h *SessionHandler) Players(w http.ResponseWriter, r *http.Request) {
	players, err := h.sessions.Players(r.Context(), mux.Vars(r)["pin"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewPlayersPayload(players))
}

// Leaderboard handles GET /v1/sessions/{pin}/leaderboard
func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.sessions.Leaderboard(r.Context(), mux.Vars(r)["pin"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Join handles POST /v1/sessions/{pin}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.sessions.JoinSession(r.Context(), mux.Vars(r)["pin"], req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// QR handles GET /v1/sessions/{pin}/qr and renders the join link as a PNG.
func (h *SessionHandler) QR(w http.ResponseWriter, r *http.Request) {
	pin := mux.Vars(r)["pin"]
	if _, err := h.sessions.GetSession(r.Context(), pin); err != nil {
		writeServiceError(w, r, err)
		return
	}

	png, err := qrcode.Encode(h.JoinURL(r, pin), qrcode.Medium, qrSize)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("pin", pin).Msg("qr generation failed")
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// JoinURL is the link a player scans to join the session.
func (h *SessionHandler) JoinURL(r *http.Request, pin string) string {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/play?pin=" + url.QueryEscape(pin)
}

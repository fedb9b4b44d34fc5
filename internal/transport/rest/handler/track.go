package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"pulsequiz/internal/model"
	"pulsequiz/internal/tracksource"
)

// TrackHandler handles track lookup
type TrackHandler struct {
	source tracksource.Source
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(source tracksource.Source) *TrackHandler {
	return &TrackHandler{source: source}
}

// SearchResponse is the body of a track search
type SearchResponse struct {
	Success bool          `json:"success"`
	Results []model.Track `json:"results"`
	Query   string        `json:"query,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Search handles GET /v1/tracks/search?query=... and ?trending=true
func (h *TrackHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	trending := r.URL.Query().Get("trending") == "true"
	if query == "" && !trending {
		writeJSON(w, http.StatusBadRequest, SearchResponse{
			Results: []model.Track{},
			Error:   "query parameter is required",
		})
		return
	}

	var (
		results []model.Track
		err     error
	)
	if trending {
		results, err = h.source.Trending(r.Context())
	} else {
		results, err = h.source.Search(r.Context(), query)
	}
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("query", query).Bool("trending", trending).Msg("track lookup failed")
		writeJSON(w, http.StatusBadGateway, SearchResponse{
			Results: []model.Track{},
			Query:   query,
			Error:   "track source unavailable",
		})
		return
	}
	if results == nil {
		results = []model.Track{}
	}

	writeJSON(w, http.StatusOK, SearchResponse{Success: true, Results: results, Query: query})
}

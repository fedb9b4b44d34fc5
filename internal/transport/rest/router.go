package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"pulsequiz/docs"
	"pulsequiz/internal/metrics"
	"pulsequiz/internal/service"
	"pulsequiz/internal/tracksource"
	"pulsequiz/internal/transport/rest/handler"
	"pulsequiz/internal/transport/rest/middleware"
	"pulsequiz/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService    *service.AuthService
	SessionService *service.SessionService
	BuzzerService  *service.BuzzerService
	GameService    *service.GameService
	ScoringService *service.ScoringService
	Fanout         *service.Fanout
	Tracks         tracksource.Source
	WSHub          *ws.Hub

	Logger         zerolog.Logger
	AllowedOrigins []string
	PublicURL      string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(c.SessionService, c.PublicURL)
	gameHandler := handler.NewGameHandler(c.GameService, c.ScoringService)
	playerHandler := handler.NewPlayerHandler(c.BuzzerService)
	trackHandler := handler.NewTrackHandler(c.Tracks)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.SessionService, c.BuzzerService, c.Fanout, originChecker(c.AllowedOrigins))

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)
	r.Use(middleware.AccessLog(c.Logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
	}).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/sessions", sessionHandler.Create).Methods("POST")
	v1.HandleFunc("/sessions/{pin}", sessionHandler.Get).Methods("GET")
	v1.HandleFunc("/sessions/{pin}/players", sessionHandler.Players).Methods("GET")
	v1.HandleFunc("/sessions/{pin}/leaderboard", sessionHandler.Leaderboard).Methods("GET")
	v1.HandleFunc("/sessions/{pin}/join", sessionHandler.Join).Methods("POST")
	v1.HandleFunc("/sessions/{pin}/qr", sessionHandler.QR).Methods("GET")
	v1.HandleFunc("/tracks/search", trackHandler.Search).Methods("GET")

	// WebSocket routes (public with token in query param)
	v1.HandleFunc("/ws/sessions/{pin}/host", wsHandler.HostWS).Methods("GET")
	v1.HandleFunc("/ws/sessions/{pin}/player", wsHandler.PlayerWS).Methods("GET")

	// Player routes (require player auth)
	playerRoutes := v1.NewRoute().Subrouter()
	playerRoutes.Use(authMW.RequirePlayer)
	playerRoutes.HandleFunc("/sessions/{pin}/buzz", playerHandler.Buzz).Methods("POST")

	// Host routes (require host auth)
	hostRoutes := v1.NewRoute().Subrouter()
	hostRoutes.Use(authMW.RequireHost)
	hostRoutes.HandleFunc("/sessions/{pin}/tracks", gameHandler.SelectTracks).Methods("POST")
	hostRoutes.HandleFunc("/sessions/{pin}/queue", gameHandler.Enqueue).Methods("POST")
	hostRoutes.HandleFunc("/sessions/{pin}/trending", gameHandler.Trending).Methods("POST")
	hostRoutes.HandleFunc("/sessions/{pin}/pause", gameHandler.Pause).Methods("POST")
	hostRoutes.HandleFunc("/sessions/{pin}/advance", gameHandler.Advance).Methods("POST")
	hostRoutes.HandleFunc("/sessions/{pin}/correct", gameHandler.Correct).Methods("POST")
	hostRoutes.HandleFunc("/sessions/{pin}/incorrect", gameHandler.Incorrect).Methods("POST")
	hostRoutes.HandleFunc("/sessions/{pin}/end", gameHandler.End).Methods("POST")

	return corsHandler(c.AllowedOrigins).Handler(r)
}

func corsHandler(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}

// originChecker applies the CORS origin list to WebSocket upgrades. A nil
// result accepts every origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || lo.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(origins, origin)
	}
}

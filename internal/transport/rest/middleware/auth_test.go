package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"pulsequiz/internal/service"
)

func newRouter(auth *service.AuthService) *mux.Router {
	mw := NewAuthMiddleware(auth)
	r := mux.NewRouter()

	host := r.PathPrefix("/host").Subrouter()
	host.Use(mw.RequireHost)
	host.HandleFunc("/{pin}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetPIN(r.Context())))
	})

	player := r.PathPrefix("/player").Subrouter()
	player.Use(mw.RequirePlayer)
	player.HandleFunc("/{pin}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetPIN(r.Context()) + "/" + GetPlayerID(r.Context())))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	auth := service.NewAuthService([]byte("mw-secret"), time.Hour, clockwork.NewRealClock())
	hostToken, _ := auth.GenerateHostToken("123456")
	playerToken, _ := auth.GeneratePlayerToken("123456", "p_abc")
	router := newRouter(auth)

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"host ok", "/host/123456", "Bearer " + hostToken, http.StatusOK, "123456"},
		{"host lowercase scheme", "/host/123456", "bearer " + hostToken, http.StatusOK, "123456"},
		{"host missing header", "/host/123456", "", http.StatusUnauthorized, ""},
		{"host wrong scheme", "/host/123456", "Basic " + hostToken, http.StatusUnauthorized, ""},
		{"host other session", "/host/654321", "Bearer " + hostToken, http.StatusForbidden, ""},
		{"player token as host", "/host/123456", "Bearer " + playerToken, http.StatusUnauthorized, ""},
		{"player ok", "/player/123456", "Bearer " + playerToken, http.StatusOK, "123456/p_abc"},
		{"player via query", "/player/123456?token=" + playerToken, "", http.StatusOK, "123456/p_abc"},
		{"host token as player", "/player/123456", "Bearer " + hostToken, http.StatusUnauthorized, ""},
		{"player other session", "/player/654321", "Bearer " + playerToken, http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestContextHelpersWithoutAuth(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if GetPIN(req.Context()) != "" || GetPlayerID(req.Context()) != "" {
		t.Fatal("expected empty values without middleware")
	}
}

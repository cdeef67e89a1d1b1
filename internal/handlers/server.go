// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openlobby/signalserver/internal/auth"
	"github.com/openlobby/signalserver/internal/registry"
	"github.com/openlobby/signalserver/internal/signal"
)

// Server bundles the shared state behind the HTTP and WebSocket surface. All
// four in-memory tables live behind Registry and Signal.Peers; handlers hold
// no state of their own.
type Server struct {
	Log        *logrus.Logger
	Challenges *auth.ChallengeStore
	Tokens     *auth.TokenService
	Registry   *registry.Registry
	Signal     *signal.Server
}

// Routes builds the route table. The bare "/{token}" pattern is the WebSocket
// upgrade: the single path segment is the full JWT. Literal routes win over
// the wildcard, so the API surface is unaffected.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.Health)
	mux.HandleFunc("POST /auth/challenge", s.Challenge)
	mux.HandleFunc("POST /auth/login", s.Login)
	mux.HandleFunc("POST /lobbies", s.CreateLobby)
	mux.HandleFunc("GET /lobbies", s.ListLobbies)
	mux.HandleFunc("POST /lobbies/{id}/join", s.JoinLobby)
	mux.HandleFunc("DELETE /lobbies/{id}", s.DeleteLobby)
	mux.HandleFunc("POST /lobbies/{id}/invite", s.InviteToLobby)
	mux.HandleFunc("GET /{token}", s.WebSocket)
	return mux
}

// Health responds 200 "OK".
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// bearerClaims validates the Authorization header and returns its claims.
func (s *Server) bearerClaims(r *http.Request) (*auth.Claims, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return s.Tokens.Validate(token)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// shortKey truncates a pubkey for log output.
func shortKey(pubkey string) string {
	if len(pubkey) > 8 {
		return pubkey[:8]
	}
	return pubkey
}

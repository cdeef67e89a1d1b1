// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/openlobby/signalserver/internal/registry"
)

// CreateLobbyRequest is the body for POST /lobbies.
type CreateLobbyRequest struct {
	IsPrivate bool     `json:"is_private"`
	Whitelist []string `json:"whitelist"`
}

// InviteRequest is the body for POST /lobbies/{id}/invite.
type InviteRequest struct {
	PlayerPublicKeys []string `json:"player_public_keys"`
}

// CreateLobby builds a new lobby owned by the caller.
func (s *Server) CreateLobby(w http.ResponseWriter, r *http.Request) {
	claims, err := s.bearerClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	var req CreateLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request payload")
		return
	}

	lobby, err := s.Registry.Create(claims.Subject, req.IsPrivate, req.Whitelist)
	if err != nil {
		s.lobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

// ListLobbies returns the lobbies visible to the caller. The bearer token is
// optional: anonymous viewers see only public Waiting lobbies.
func (s *Server) ListLobbies(w http.ResponseWriter, r *http.Request) {
	viewer := ""
	if claims, err := s.bearerClaims(r); err == nil {
		viewer = claims.Subject
	}
	writeJSON(w, http.StatusOK, s.Registry.Discover(viewer))
}

// JoinLobby adds the caller to a lobby. Rejoining the same lobby is an
// idempotent 200.
func (s *Server) JoinLobby(w http.ResponseWriter, r *http.Request) {
	claims, err := s.bearerClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	lobbyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Lobby not found")
		return
	}

	if err := s.Registry.Join(lobbyID, claims.Subject); err != nil {
		s.lobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteLobby is polymorphic on ownership: the owner deletes the lobby, any
// other member merely leaves it.
func (s *Server) DeleteLobby(w http.ResponseWriter, r *http.Request) {
	claims, err := s.bearerClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	lobbyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Lobby not found")
		return
	}

	if err := s.Registry.Delete(lobbyID, claims.Subject); err != nil {
		s.lobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// InviteToLobby adds public keys to the lobby whitelist. Owner only.
func (s *Server) InviteToLobby(w http.ResponseWriter, r *http.Request) {
	claims, err := s.bearerClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	lobbyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Lobby not found")
		return
	}

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request payload")
		return
	}

	if err := s.Registry.Invite(lobbyID, claims.Subject, req.PlayerPublicKeys); err != nil {
		s.lobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"invited": req.PlayerPublicKeys,
	})
}

// lobbyError maps registry sentinel errors to HTTP statuses. This is the only
// place the mapping happens.
func (s *Server) lobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrAlreadyInLobby):
		writeError(w, http.StatusConflict, "Already in a lobby")
	case errors.Is(err, registry.ErrNotInWhitelist):
		writeError(w, http.StatusForbidden, "Not in whitelist")
	case errors.Is(err, registry.ErrNotOwner):
		writeError(w, http.StatusForbidden, "Only the lobby owner can do that")
	case errors.Is(err, registry.ErrLobbyNotFound):
		writeError(w, http.StatusNotFound, "Lobby not found")
	default:
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

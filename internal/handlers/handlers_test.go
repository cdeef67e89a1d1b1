// internal/handlers/handlers_test.go
package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/openlobby/signalserver/internal/auth"
	"github.com/openlobby/signalserver/internal/handlers"
	"github.com/openlobby/signalserver/internal/registry"
	"github.com/openlobby/signalserver/internal/signal"
)

const testSecret = "test-secret-key-for-development-only"

func newTestServer(t *testing.T) *handlers.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	reg := registry.New(log)
	return &handlers.Server{
		Log:        log,
		Challenges: auth.NewChallengeStore(time.Minute),
		Tokens:     auth.NewTokenService([]byte(testSecret), time.Hour),
		Registry:   reg,
		Signal: &signal.Server{
			Registry: reg,
			Peers:    signal.NewPeerRegistry(log),
			Log:      log,
		},
	}
}

func mustToken(t *testing.T, srv *handlers.Server, pubkey, username string) string {
	t.Helper()
	token, err := srv.Tokens.Issue(pubkey, username)
	require.NoError(t, err)
	return token
}

// do runs a request against the server's mux and returns the response.
func do(t *testing.T, srv *handlers.Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	return w
}

func createLobby(t *testing.T, srv *handlers.Server, token string, isPrivate bool, whitelist []string) registry.Lobby {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/lobbies", token, handlers.CreateLobbyRequest{
		IsPrivate: isPrivate,
		Whitelist: whitelist,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var lobby registry.Lobby
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lobby))
	return lobby
}

func listLobbies(t *testing.T, srv *handlers.Server, token string) []registry.Lobby {
	t.Helper()
	w := do(t, srv, http.MethodGet, "/lobbies", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var lobbies []registry.Lobby
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lobbies))
	return lobbies
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestLoginHappyPathAndReplay(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/auth/challenge", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var challengeRes struct {
		Challenge string `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challengeRes))
	require.Len(t, challengeRes.Challenge, 32)

	payload := auth.NewLoginPayload("alice", "hunter2", challengeRes.Challenge)
	w = do(t, srv, http.MethodPost, "/auth/login", "", payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var loginRes struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginRes))

	claims, err := srv.Tokens.Validate(loginRes.Token)
	require.NoError(t, err)
	require.Equal(t, payload.PublicKeyB64, claims.Subject)
	require.Equal(t, "alice", claims.Username)

	// Replaying the consumed challenge fails.
	w = do(t, srv, http.MethodPost, "/auth/login", "", payload)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginBadSignature(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/auth/challenge", "", nil)
	var challengeRes struct {
		Challenge string `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challengeRes))

	// Signature over the wrong message.
	payload := auth.NewLoginPayload("alice", "hunter2", "not-the-challenge")
	payload.Challenge = challengeRes.Challenge

	w = do(t, srv, http.MethodPost, "/auth/login", "", payload)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "Invalid signature")
}

func TestLoginUnknownChallenge(t *testing.T) {
	srv := newTestServer(t)
	payload := auth.NewLoginPayload("alice", "hunter2", "never-issued-challenge-0000000000")

	w := do(t, srv, http.MethodPost, "/auth/login", "", payload)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "Invalid challenge")
}

func TestLobbyRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/lobbies", "", handlers.CreateLobbyRequest{})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, srv, http.MethodPost, "/lobbies", "garbage-token", handlers.CreateLobbyRequest{})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicLobbyDiscoveryAndJoin(t *testing.T) {
	srv := newTestServer(t)
	tokenA := mustToken(t, srv, "pubkey-alice", "alice")
	tokenB := mustToken(t, srv, "pubkey-bob", "bob")

	lobby := createLobby(t, srv, tokenA, false, nil)

	// An unrelated identity and the owner both see the lobby.
	require.Len(t, listLobbies(t, srv, tokenB), 1)
	require.Len(t, listLobbies(t, srv, tokenA), 1)
	require.Len(t, listLobbies(t, srv, ""), 1)

	w := do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/join", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPrivateLobbyWhitelist(t *testing.T) {
	srv := newTestServer(t)
	tokenA := mustToken(t, srv, "pubkey-alice", "alice")
	tokenB := mustToken(t, srv, "pubkey-bob", "bob")
	tokenC := mustToken(t, srv, "pubkey-carol", "carol")

	lobby := createLobby(t, srv, tokenA, true, []string{"pubkey-bob"})

	require.Len(t, listLobbies(t, srv, tokenB), 1)
	require.Len(t, listLobbies(t, srv, tokenC), 0)
	require.Len(t, listLobbies(t, srv, ""), 0)

	w := do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/join", tokenC, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/join", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOneLobbyPerPlayer(t *testing.T) {
	srv := newTestServer(t)
	tokenA := mustToken(t, srv, "pubkey-alice", "alice")
	tokenB := mustToken(t, srv, "pubkey-bob", "bob")

	l1 := createLobby(t, srv, tokenA, false, nil)

	// Creating a second lobby while in one conflicts.
	w := do(t, srv, http.MethodPost, "/lobbies", tokenA, handlers.CreateLobbyRequest{})
	require.Equal(t, http.StatusConflict, w.Code)

	l2 := createLobby(t, srv, tokenB, false, nil)

	// Joining another lobby conflicts; rejoining one's own is idempotent.
	w = do(t, srv, http.MethodPost, "/lobbies/"+l2.ID.String()+"/join", tokenA, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodPost, "/lobbies/"+l1.ID.String()+"/join", tokenA, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOwnerDeleteVsMemberLeave(t *testing.T) {
	srv := newTestServer(t)
	tokenA := mustToken(t, srv, "pubkey-alice", "alice")
	tokenB := mustToken(t, srv, "pubkey-bob", "bob")

	lobby := createLobby(t, srv, tokenA, false, nil)
	w := do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/join", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)

	lobbies := listLobbies(t, srv, "")
	require.Len(t, lobbies, 1)
	require.Len(t, lobbies[0].Players, 2)

	// A member's DELETE is a leave: the lobby survives without them.
	w = do(t, srv, http.MethodDelete, "/lobbies/"+lobby.ID.String(), tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)

	lobbies = listLobbies(t, srv, "")
	require.Len(t, lobbies, 1)
	require.Len(t, lobbies[0].Players, 1)

	// The owner's DELETE removes the lobby.
	w = do(t, srv, http.MethodDelete, "/lobbies/"+lobby.ID.String(), tokenA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, listLobbies(t, srv, ""), 0)

	w = do(t, srv, http.MethodDelete, "/lobbies/"+lobby.ID.String(), tokenA, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinStartedLobbyReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	tokenB := mustToken(t, srv, "pubkey-bob", "bob")

	lobby, err := srv.Registry.Create("pubkey-alice", false, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Registry.Start(lobby.ID, "pubkey-alice"))

	w := do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/join", tokenB, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestInviteEndpoint(t *testing.T) {
	srv := newTestServer(t)
	tokenA := mustToken(t, srv, "pubkey-alice", "alice")
	tokenB := mustToken(t, srv, "pubkey-bob", "bob")

	lobby := createLobby(t, srv, tokenA, true, nil)

	w := do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/invite", tokenB,
		handlers.InviteRequest{PlayerPublicKeys: []string{"pubkey-bob"}})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/invite", tokenA,
		handlers.InviteRequest{PlayerPublicKeys: []string{"pubkey-bob", "pubkey-carol"}})
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Success bool     `json:"success"`
		Invited []string `json:"invited"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, []string{"pubkey-bob", "pubkey-carol"}, res.Invited)

	w = do(t, srv, http.MethodPost, "/lobbies/"+lobby.ID.String()+"/join", tokenB, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownLobbyPaths(t *testing.T) {
	srv := newTestServer(t)
	token := mustToken(t, srv, "pubkey-alice", "alice")

	for _, path := range []string{
		"/lobbies/8f4e9d4e-6f3a-4b8e-9a5b-0c1d2e3f4a5b/join",
		"/lobbies/not-a-uuid/join",
	} {
		w := do(t, srv, http.MethodPost, path, token, nil)
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

// internal/handlers/ws.go
package handlers

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket authorizes and upgrades a signaling connection. The upgrade URL
// carries the bearer token as its only path segment; an invalid token is
// rejected with 401 before any socket is opened. On success the identity is
// parked in the waiting table keyed by client address, and the session machine
// takes over.
func (s *Server) WebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.Tokens.Validate(r.PathValue("token"))
	if err != nil {
		s.Log.WithField("remote", r.RemoteAddr).Warn("websocket upgrade with invalid token")
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	s.Signal.Peers.AddWaiting(r.RemoteAddr, claims.Subject)

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Log.Warnf("websocket accept error: %v", err)
		s.Signal.Peers.DropWaiting(r.RemoteAddr)
		return
	}
	s.Log.WithFields(logrus.Fields{
		"remote": r.RemoteAddr,
		"pubkey": shortKey(claims.Subject),
	}).Info("websocket connected")

	s.Signal.Run(r.Context(), c, r.RemoteAddr)
}

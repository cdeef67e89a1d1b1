// internal/handlers/auth.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/openlobby/signalserver/internal/auth"
)

// Challenge issues a fresh one-shot login nonce.
func (s *Server) Challenge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"challenge": s.Challenges.Generate(),
	})
}

// Login verifies a challenge signature and mints a bearer token. The challenge
// is consumed before the signature check, so each issued challenge backs at
// most one verification attempt. Verification failures surface as a uniform
// 401 without the underlying cause.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var payload auth.LoginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid challenge")
		return
	}

	log := s.Log.WithField("pubkey", shortKey(payload.PublicKeyB64))
	log.Info("login attempt")

	if !s.Challenges.Consume(payload.Challenge) {
		log.Warn("challenge verification failed")
		writeError(w, http.StatusUnauthorized, "Invalid challenge")
		return
	}
	if !auth.VerifySignature(payload.PublicKeyB64, payload.Challenge, payload.SignatureB64) {
		log.Warn("signature validation failed")
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	token, err := s.Tokens.Issue(payload.PublicKeyB64, payload.Username)
	if err != nil {
		log.Error("failed to issue token")
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	s.Log.WithFields(logrus.Fields{
		"pubkey":   shortKey(payload.PublicKeyB64),
		"username": payload.Username,
	}).Info("login successful")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

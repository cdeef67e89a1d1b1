// internal/auth/session.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every token failure: malformed, expired, or signed
// with the wrong key or method. Callers surface it as a uniform 401.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload. The subject is the player's base64 Ed25519 public
// key and acts as the canonical identity; the username is advisory.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService mints and validates HMAC-signed bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService binds a token service to an HMAC secret and a token TTL.
func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, ttl: ttl}
}

// Issue mints a token for the given public key, valid for the configured TTL.
func (s *TokenService) Issue(publicKeyB64, username string) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   publicKeyB64,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token string, returning its claims or
// ErrInvalidToken.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !t.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

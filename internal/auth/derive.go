// internal/auth/derive.go
package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters matching the reference client derivation.
const (
	argonTime    = 2
	argonMemory  = 19 * 1024 // KiB
	argonThreads = 1
	argonKeyLen  = 32
)

// DeriveKeypair deterministically derives an Ed25519 keypair from credentials:
// the salt is the first 16 bytes of SHA-256(username), the password is hashed
// with Argon2id, and the first 32 bytes of the hash seed the key. The server
// only ever sees the derived public key; this helper exists for clients and
// test scaffolding.
func DeriveKeypair(username, password string) (ed25519.PublicKey, ed25519.PrivateKey) {
	sum := sha256.Sum256([]byte(username))
	seed := argon2.IDKey([]byte(password), sum[:16], argonTime, argonMemory, argonThreads, argonKeyLen)
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv
}

// LoginPayload is the JSON body for POST /auth/login.
type LoginPayload struct {
	PublicKeyB64 string `json:"public_key_b64"`
	Username     string `json:"username"`
	Challenge    string `json:"challenge"`
	SignatureB64 string `json:"signature_b64"`
}

// NewLoginPayload derives the caller's keypair and signs the challenge,
// producing a complete login request body.
func NewLoginPayload(username, password, challenge string) LoginPayload {
	pub, priv := DeriveKeypair(username, password)
	sig := ed25519.Sign(priv, []byte(challenge))
	return LoginPayload{
		PublicKeyB64: base64.StdEncoding.EncodeToString(pub),
		Username:     username,
		Challenge:    challenge,
		SignatureB64: base64.StdEncoding.EncodeToString(sig),
	}
}

// internal/auth/identity.go
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
)

// VerifySignature checks an Ed25519 signature over message. The public key and
// signature arrive as standard-alphabet base64. Any decoding failure, length
// mismatch, or verification failure is reported as false; callers treat
// "cannot verify" and "invalid" identically so no cryptographic detail leaks.
func VerifySignature(publicKeyB64, message, signatureB64 string) bool {
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}

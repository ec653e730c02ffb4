package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// generateRandomString returns length random bytes, base64url encoded
// without padding.
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CodeChallengeS256 derives the PKCE S256 challenge of verifier (RFC 7636).
func CodeChallengeS256(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func randomURLToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateSecureToken creates a cryptographically secure random token.
// Returns a base64 URL-encoded string suitable for use as OAuth state parameters.
func GenerateSecureToken() (string, error) {
	return randomURLToken(32)
}

// GenerateCodeVerifier creates a PKCE code verifier from 64 random bytes.
// The encoded form is 86 characters, inside the 43..128 range RFC 7636 allows.
func GenerateCodeVerifier() (string, error) {
	return randomURLToken(64)
}

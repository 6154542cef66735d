package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each derived key is bound to its purpose so one configured
// secret never signs and encrypts with the same bytes.
const (
	PurposeSessionSigning  = "animeswipe session signing v1"
	PurposeTokenEncryption = "animeswipe token encryption v1"
)

// DeriveKey expands secret into a size-byte key for the given purpose.
func DeriveKey(secret []byte, purpose string, size int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %q key: %w", purpose, err)
	}
	return key, nil
}

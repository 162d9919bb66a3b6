package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// secretBytes is the entropy of a freshly generated subscriber secret.
const secretBytes = 32

// NewSecret generates a random signing secret for a subscriber. The result
// is hex-encoded, so it is twice secretBytes in length.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

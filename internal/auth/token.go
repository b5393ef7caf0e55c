package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// TokenLength is the length of a raw API token. Bearers of any other
// length are treated as session ids.
const TokenLength = 64

// IsAPIToken reports whether bearer has the shape of an API token.
func IsAPIToken(bearer string) bool {
	return len(bearer) == TokenLength
}

// HashToken returns the hex SHA-512 digest stored in place of a raw token.
func HashToken(raw string) string {
	sum := sha512.Sum512([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns a new raw API token.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

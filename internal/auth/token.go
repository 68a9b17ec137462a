package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// TokenLength is the length of generated admin tokens in bytes (32 bytes = 256 bits)
	TokenLength = 32

	// TokenPrefix is the prefix for all admin tokens
	TokenPrefix = "mgw_"
)

// GenerateToken generates a new random admin token
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return TokenPrefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashToken creates a SHA-256 digest of a token
func HashToken(token string) []byte {
	hash := sha256.Sum256([]byte(token))
	return hash[:]
}

// TokenMatches compares a presented token with the configured one in constant time.
// An empty configured token never matches.
func TokenMatches(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare(HashToken(configured), HashToken(presented)) == 1
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

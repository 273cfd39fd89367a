package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SessionIDPrefix identifies warden session cookies
	SessionIDPrefix = "wsid_"
	// SessionIDLength is the number of random bytes (32 bytes = 256 bits)
	SessionIDLength = 32
)

// NewSessionID creates an opaque session identifier for the browser cookie.
// Format: wsid_<base64url(32 random bytes)>
func NewSessionID() (string, error) {
	randomBytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return SessionIDPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ValidSessionID checks the shape of a cookie value before it is used as a key
func ValidSessionID(id string) bool {
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(id, SessionIDPrefix))
	if err != nil {
		return false
	}
	return len(decoded) == SessionIDLength
}

// HashSessionID returns the storage key for a session ID. Raw cookie values
// are never written to the session backend.
func HashSessionID(id string) string {
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])
}

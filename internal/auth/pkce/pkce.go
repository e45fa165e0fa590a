// Package pkce generates the proof-key material for the Authorization Code
// flow (RFC 7636, S256 only) and the anti-forgery state token that ties a
// provider redirect back to its waiting loopback listener.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const verifierBytes = 32

// GenerateVerifier returns a URL-safe code verifier built from 32
// cryptographically random bytes.
func GenerateVerifier() (string, error) {
	b := make([]byte, verifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("entropy source failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Challenge returns the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)), no padding.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState returns an opaque anti-forgery token embedding the callback
// port, so the redirect can be matched to its listener without a shared
// registry.
func GenerateState(port int) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("entropy source failed: %w", err)
	}
	return hex.EncodeToString(b) + "." + strconv.Itoa(port), nil
}

// PortFromState extracts the callback port embedded by GenerateState.
func PortFromState(state string) (int, error) {
	idx := strings.LastIndex(state, ".")
	if idx < 0 {
		return 0, fmt.Errorf("state token has no port component")
	}
	port, err := strconv.Atoi(state[idx+1:])
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("state token has invalid port %q", state[idx+1:])
	}
	return port, nil
}

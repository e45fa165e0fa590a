// Package logging provides login-attempt ID context propagation, so the
// log lines of one flow can be correlated.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const attemptIDKey contextKey = "attemptId"

// GenerateAttemptID creates an 8-character hex attempt ID.
func GenerateAttemptID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithAttemptID injects an attempt ID into the context.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, attemptIDKey, attemptID)
}

// AttemptID retrieves the attempt ID from the context.
// Returns empty string if not found.
func AttemptID(ctx context.Context) string {
	if id, ok := ctx.Value(attemptIDKey).(string); ok {
		return id
	}
	return ""
}

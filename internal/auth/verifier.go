// Package auth verifies the opaque bearer credentials clients present
// in-band over the WebSocket connection.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken marks a credential the backend rejected, as opposed to a
// backend failure. Callers report both as an authentication error but log
// backend failures at error severity.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenVerifier validates an opaque credential and yields the subject it
// authenticates.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// StaticVerifier resolves tokens against a fixed in-memory map. Used in
// development and tests.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier over a token→userID map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	userID, ok := v.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Validator checks a credential and returns the account it belongs to
type Validator interface {
	Validate(ctx context.Context, credential string) (accountID string, err error)
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(ctx context.Context, credential string) (string, error)

// Validate calls f(ctx, credential)
func (f ValidatorFunc) Validate(ctx context.Context, credential string) (string, error) {
	return f(ctx, credential)
}

// CredentialFromRequest extracts the bearer credential from a connection
// request. The Authorization header wins over the token query parameter,
// which browsers need because they cannot set headers on a WebSocket.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

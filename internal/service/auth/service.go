// Package auth verifies session tokens issued by the dashboard login flow.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"log/slog"

	jwtpkg "github.com/logwell/logwell/pkg/jwt"
)

// ErrUnauthenticated reports a missing or rejected session token.
var ErrUnauthenticated = errors.New("authentication required")

// Caller identifies the authenticated dashboard user.
type Caller struct {
	UserID string
}

// Service authorizes session tokens.
type Service struct {
	secret string
	logger *slog.Logger
}

// New constructs a Service verifying tokens signed with secret.
func New(secret string, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{secret: secret, logger: logger.With("component", "auth")}
}

// Authorize validates a bearer token and returns its caller.
func (s Service) Authorize(token string) (Caller, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Caller{}, ErrUnauthenticated
	}
	if s.secret == "" {
		return Caller{}, fmt.Errorf("%w: session secret not configured", ErrUnauthenticated)
	}
	claims, err := jwtpkg.Parse(trimmed, s.secret)
	if err != nil {
		s.logger.Debug("session token rejected", "error", err)
		return Caller{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return Caller{UserID: claims.UserID}, nil
}

package auth

import (
	"errors"
	"testing"
	"time"

	jwtpkg "github.com/logwell/logwell/pkg/jwt"
)

func TestAuthorizeAcceptsValidToken(t *testing.T) {
	token, err := jwtpkg.GenerateToken("user-1", "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	caller, err := New("secret", nil).Authorize(" " + token + " ")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if caller.UserID != "user-1" {
		t.Fatalf("unexpected caller %+v", caller)
	}
}

func TestAuthorizeRejects(t *testing.T) {
	expired, err := jwtpkg.GenerateToken("user-1", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	otherSecret, err := jwtpkg.GenerateToken("user-1", "other", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	svc := New("secret", nil)
	for name, token := range map[string]string{"empty": "", "garbage": "not-a-jwt", "expired": expired, "wrong secret": otherSecret} {
		if _, err := svc.Authorize(token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

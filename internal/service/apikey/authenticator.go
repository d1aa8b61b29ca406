// Package apikey authenticates ingestion requests by project API key.
package apikey

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/logwell/logwell/internal/repository"
)

// Prefix starts every project API key.
const Prefix = "lw_"

const (
	keyBodyLength = 32
	keyAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

var keyPattern = regexp.MustCompile(`^lw_[A-Za-z0-9_-]{32}$`)

// ErrUnauthorized reports a missing, malformed or unknown key.
var ErrUnauthorized = errors.New("invalid api key")

// KeyStore resolves keys that are not cached.
type KeyStore interface {
	GetProjectIDByAPIKey(ctx context.Context, apiKey string) (string, error)
}

// Authenticator resolves API keys through a TTL cache in front of the store.
type Authenticator struct {
	store  KeyStore
	cache  *Cache
	logger *slog.Logger
}

// NewAuthenticator wires an authenticator. A nil cache gets a default one.
func NewAuthenticator(store KeyStore, cache *Cache, logger *slog.Logger) *Authenticator {
	if cache == nil {
		cache = NewCache(DefaultTTL, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{store: store, cache: cache, logger: logger.With("component", "apikey")}
}

// ValidFormat reports whether token has the shape of an API key.
func ValidFormat(token string) bool {
	return keyPattern.MatchString(token)
}

// Authenticate returns the project id owning token.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if !ValidFormat(token) {
		return "", ErrUnauthorized
	}
	if projectID, ok := a.cache.Get(token); ok {
		return projectID, nil
	}
	version := a.cache.Version()
	projectID, err := a.store.GetProjectIDByAPIKey(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	if !a.cache.SetIfCurrent(token, projectID, version) {
		a.logger.Debug("api key lookup raced an invalidation, not cached")
	}
	return projectID, nil
}

// Invalidate forgets a key. Callers that revoke a key must call it before
// reporting success.
func (a *Authenticator) Invalidate(key string) {
	a.cache.Invalidate(key)
	a.logger.Debug("api key invalidated")
}

// Clear forgets every cached key.
func (a *Authenticator) Clear() {
	a.cache.Clear()
}

// GenerateKey returns a fresh random API key.
func GenerateKey() (string, error) {
	buf := make([]byte, keyBodyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	var b strings.Builder
	b.Grow(len(Prefix) + keyBodyLength)
	b.WriteString(Prefix)
	for _, v := range buf {
		// 64 symbols, so the low six bits index without bias.
		b.WriteByte(keyAlphabet[v&63])
	}
	return b.String(), nil
}

// Package logs ingests, queries and summarizes project logs.
package logs

import (
	"log/slog"
	"time"

	"github.com/logwell/logwell/internal/repository"
	"github.com/logwell/logwell/internal/stream"
)

// Service handles log persistence, querying and live publication.
type Service struct {
	repo   repository.LogRepository
	hub    *stream.Hub
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a log service publishing to hub.
func New(repo repository.LogRepository, hub *stream.Hub, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, hub: hub, logger: logger.With("component", "logs"), now: time.Now}
}

// WithClock returns a copy of s reading the current time from now.
func (s Service) WithClock(now func() time.Time) Service {
	s.now = now
	return s
}

// Hub returns the hub inserted logs are published to.
func (s Service) Hub() *stream.Hub {
	return s.hub
}

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

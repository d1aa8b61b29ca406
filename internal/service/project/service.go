package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/logwell/logwell/internal/domain"
	"github.com/logwell/logwell/internal/repository"
	"github.com/logwell/logwell/internal/service/apikey"
)

// ErrInvalidInput wraps every rejected project attribute.
var ErrInvalidInput = errors.New("invalid project input")

var (
	errInvalidProjectName = fmt.Errorf("%w: project name is required", ErrInvalidInput)
	errInvalidRetention   = fmt.Errorf("%w: retentionDays must be null or an integer between 0 and %d", ErrInvalidInput, domain.MaxRetentionDays)
	errMissingOwnerID     = fmt.Errorf("%w: owner id required", ErrInvalidInput)
)

// KeyInvalidator forgets cached API keys.
type KeyInvalidator interface {
	Invalidate(key string)
}

// Service orchestrates project ownership and API key lifecycle.
type Service struct {
	projects repository.ProjectRepository
	keys     KeyInvalidator
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a project service. keys is told about every key that stops
// being valid.
func New(projects repository.ProjectRepository, keys KeyInvalidator, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{projects: projects, keys: keys, logger: logger.With("component", "project"), now: time.Now}
}

// Create registers a project with a fresh API key.
func (s Service) Create(ctx context.Context, ownerID, name string, retentionDays *int) (*domain.Project, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return nil, errMissingOwnerID
	}
	if name == "" {
		return nil, errInvalidProjectName
	}
	if retentionDays != nil && !domain.ValidRetentionDays(*retentionDays) {
		return nil, errInvalidRetention
	}
	key, err := apikey.GenerateKey()
	if err != nil {
		return nil, err
	}
	project := &domain.Project{
		ID:            uuid.NewString(),
		Name:          name,
		APIKey:        key,
		OwnerID:       ownerID,
		RetentionDays: retentionDays,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project_id", project.ID, "owner_id", ownerID)
	return project, nil
}

// ListOwned returns the caller's projects, newest first.
func (s Service) ListOwned(ctx context.Context, userID string) ([]domain.Project, error) {
	return s.projects.ListProjectsByOwner(ctx, userID)
}

// GetOwned returns the project when userID owns it. Projects owned by
// someone else are reported as repository.ErrNotFound.
func (s Service) GetOwned(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" || strings.TrimSpace(userID) == "" {
		return nil, repository.ErrNotFound
	}
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != userID {
		return nil, repository.ErrNotFound
	}
	return project, nil
}

// RotateKey replaces the project's API key. The old key is evicted from the
// authentication cache before the new key is returned.
func (s Service) RotateKey(ctx context.Context, projectID, userID string) (string, error) {
	project, err := s.GetOwned(ctx, projectID, userID)
	if err != nil {
		return "", err
	}
	key, err := apikey.GenerateKey()
	if err != nil {
		return "", err
	}
	if err := s.projects.UpdateAPIKey(ctx, project.ID, key); err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	s.invalidate(project.APIKey)
	s.logger.Info("api key rotated", "project_id", project.ID)
	return key, nil
}

// Delete removes the project and its logs, then evicts its key.
func (s Service) Delete(ctx context.Context, projectID, userID string) error {
	project, err := s.GetOwned(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, project.ID); err != nil {
		return err
	}
	s.invalidate(project.APIKey)
	s.logger.Info("project deleted", "project_id", project.ID)
	return nil
}

// UpdateRetention sets the retention override; nil restores the default.
func (s Service) UpdateRetention(ctx context.Context, projectID, userID string, retentionDays *int) (*domain.Project, error) {
	if retentionDays != nil && !domain.ValidRetentionDays(*retentionDays) {
		return nil, errInvalidRetention
	}
	project, err := s.GetOwned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.projects.UpdateRetention(ctx, project.ID, retentionDays); err != nil {
		return nil, err
	}
	project.RetentionDays = retentionDays
	project.UpdatedAt = s.now().UTC()
	return project, nil
}

func (s Service) invalidate(key string) {
	if s.keys != nil && key != "" {
		s.keys.Invalidate(key)
	}
}

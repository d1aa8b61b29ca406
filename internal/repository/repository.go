package repository

import (
	"context"
	"time"

	"github.com/logwell/logwell/internal/domain"
)

// ProjectRepository persists projects and resolves API keys.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	GetProjectIDByAPIKey(ctx context.Context, apiKey string) (string, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]domain.Project, error)
	UpdateAPIKey(ctx context.Context, projectID, apiKey string) error
	UpdateRetention(ctx context.Context, projectID string, retentionDays *int) error
	DeleteProject(ctx context.Context, projectID string) error
}

// LogRepository handles log persistence and retrieval.
type LogRepository interface {
	// InsertLogs writes the whole batch in one transaction.
	InsertLogs(ctx context.Context, entries []domain.IndexedLog) error
	ListLogs(ctx context.Context, page domain.LogPage) ([]domain.Log, error)
	CountLogs(ctx context.Context, filter domain.LogFilter) (int64, error)
	CountLogsByBucket(ctx context.Context, projectID string, start, end time.Time, span time.Duration) ([]domain.TimeBucket, error)
	CountLogsByLevel(ctx context.Context, projectID string) (map[domain.LogLevel]int64, error)
	// DeleteLogsBefore removes at most limit logs with timestamp strictly before cutoff.
	DeleteLogsBefore(ctx context.Context, projectID string, cutoff time.Time, limit int) (int64, error)
}

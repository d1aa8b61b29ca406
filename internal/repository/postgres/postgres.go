package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logwell/logwell/internal/domain"
	"github.com/logwell/logwell/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProjectRepository = (*Repository)(nil)
	_ repository.LogRepository     = (*Repository)(nil)
)

const projectColumns = `id, name, api_key, owner_id, retention_days, created_at, updated_at`

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	if project == nil {
		return fmt.Errorf("project required")
	}
	const query = `INSERT INTO projects (id, name, api_key, owner_id, retention_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`
	_, err := r.pool.Exec(ctx, query, project.ID, project.Name, project.APIKey, project.OwnerID, intPtrToNil(project.RetentionDays), project.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	project.UpdatedAt = project.CreatedAt
	return nil
}

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	project, err := scanProject(r.pool.QueryRow(ctx, query, projectID))
	if err != nil {
		return nil, err
	}
	return project, nil
}

// GetProjectIDByAPIKey resolves the project owning an API key.
func (r *Repository) GetProjectIDByAPIKey(ctx context.Context, apiKey string) (string, error) {
	const query = `SELECT id FROM projects WHERE api_key = $1`
	var id string
	if err := r.pool.QueryRow(ctx, query, apiKey).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

// ListProjects returns every project, oldest first.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at`
	return r.listProjects(ctx, query)
}

// ListProjectsByOwner returns projects owned by a user, newest first.
func (r *Repository) ListProjectsByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.listProjects(ctx, query, ownerID)
}

func (r *Repository) listProjects(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *project)
	}
	return projects, rows.Err()
}

// UpdateAPIKey replaces the API key of a project.
func (r *Repository) UpdateAPIKey(ctx context.Context, projectID, apiKey string) error {
	const query = `UPDATE projects SET api_key = $2, updated_at = NOW() WHERE id = $1`
	return r.execAffecting(ctx, query, projectID, apiKey)
}

// UpdateRetention sets the per-project retention override; nil restores the default.
func (r *Repository) UpdateRetention(ctx context.Context, projectID string, retentionDays *int) error {
	const query = `UPDATE projects SET retention_days = $2, updated_at = NOW() WHERE id = $1`
	return r.execAffecting(ctx, query, projectID, intPtrToNil(retentionDays))
}

// DeleteProject removes a project; its logs cascade.
func (r *Repository) DeleteProject(ctx context.Context, projectID string) error {
	const query = `DELETE FROM projects WHERE id = $1`
	return r.execAffecting(ctx, query, projectID)
}

func (r *Repository) execAffecting(ctx context.Context, query string, args ...any) error {
	cmdTag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		project   domain.Project
		retention *int32
	)
	if err := row.Scan(&project.ID, &project.Name, &project.APIKey, &project.OwnerID, &retention, &project.CreatedAt, &project.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if retention != nil {
		days := int(*retention)
		project.RetentionDays = &days
	}
	return &project, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return repository.ErrNotFound
		case "23505":
			return repository.ErrConflict
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}

func emptyToNil(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func intPtrToNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func bytesToNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Package retention purges logs that are older than their project allows.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/logwell/logwell/internal/domain"
)

const (
	// DefaultDays applies to projects without their own setting.
	DefaultDays = 30
	// ChunkSize bounds the rows removed per delete statement.
	ChunkSize = 1000
)

var deletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "logwell_retention_deleted_total",
	Help: "Logs removed by the retention job.",
})

// Collectors returns the metrics owned by this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{deletedTotal}
}

// ProjectLister enumerates every project.
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

// LogPurger deletes old logs in bounded chunks.
type LogPurger interface {
	DeleteLogsBefore(ctx context.Context, projectID string, cutoff time.Time, limit int) (int64, error)
}

// ProjectError records a project whose cleanup failed.
type ProjectError struct {
	ProjectID string
	Err       error
}

func (e ProjectError) Error() string {
	return fmt.Sprintf("project %s: %v", e.ProjectID, e.Err)
}

// Report summarizes one run.
type Report struct {
	TotalLogsDeleted  int64
	ProjectsProcessed int
	ProjectsSkipped   int
	Errors            []ProjectError
}

// Job applies retention to every project once per Run.
type Job struct {
	projects    ProjectLister
	logs        LogPurger
	defaultDays int
	chunkSize   int
	now         func() time.Time
	logger      *slog.Logger
}

// NewJob constructs a Job. A negative defaultDays selects DefaultDays.
func NewJob(projects ProjectLister, logs LogPurger, defaultDays int, logger *slog.Logger) *Job {
	if defaultDays < 0 {
		defaultDays = DefaultDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		projects:    projects,
		logs:        logs,
		defaultDays: defaultDays,
		chunkSize:   ChunkSize,
		now:         time.Now,
		logger:      logger.With("component", "retention"),
	}
}

// Run processes projects one after another. A failing project is recorded
// in the report and the run moves on.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var report Report
	projects, err := j.projects.ListProjects(ctx)
	if err != nil {
		return report, fmt.Errorf("list projects: %w", err)
	}

	now := j.now().UTC()
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		days := project.EffectiveRetentionDays(j.defaultDays)
		if days <= 0 {
			report.ProjectsSkipped++
			continue
		}
		cutoff := now.AddDate(0, 0, -days)
		deleted, err := j.purge(ctx, project.ID, cutoff)
		report.TotalLogsDeleted += deleted
		if err != nil {
			j.logger.Error("retention failed for project", "project_id", project.ID, "error", err)
			report.Errors = append(report.Errors, ProjectError{ProjectID: project.ID, Err: err})
			continue
		}
		report.ProjectsProcessed++
		if deleted > 0 {
			j.logger.Info("expired logs deleted", "project_id", project.ID, "deleted", deleted, "retention_days", days)
		}
	}
	return report, nil
}

// purge deletes logs with timestamp strictly before cutoff until a chunk
// comes back short.
func (j *Job) purge(ctx context.Context, projectID string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		n, err := j.logs.DeleteLogsBefore(ctx, projectID, cutoff, j.chunkSize)
		if err != nil {
			return total, err
		}
		total += n
		deletedTotal.Add(float64(n))
		if n < int64(j.chunkSize) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

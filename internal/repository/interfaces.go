// Package repository defines data access interfaces for slidereel entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/slidereel/internal/models"
)

// JobRepository defines operations for job persistence.
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error
	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// GetAll retrieves all jobs, newest first.
	GetAll(ctx context.Context) ([]*models.Job, error)
	// List retrieves jobs with optional status filter and pagination, newest first.
	List(ctx context.Context, status *models.JobStatus, offset, limit int) ([]*models.Job, int64, error)
	// GetByStatus retrieves jobs by status, oldest first.
	GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// GetNextPending retrieves the oldest pending job, or nil when the queue is empty.
	GetNextPending(ctx context.Context) (*models.Job, error)
	// GetRunning retrieves all currently running jobs.
	GetRunning(ctx context.Context) ([]*models.Job, error)
	// Update updates an existing job.
	Update(ctx context.Context, job *models.Job) error
	// Delete deletes a job by ID.
	Delete(ctx context.Context, id models.ULID) error
	// ClearFinished deletes every job in a terminal status.
	ClearFinished(ctx context.Context) (int64, error)
	// DeleteFinishedBefore deletes finished jobs that completed before the given time.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
	// MarkStaleRunning fails any job still marked running, used at startup to
	// recover from an unclean shutdown.
	MarkStaleRunning(ctx context.Context, reason string) (int64, error)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/slidereel/internal/models"
	"gorm.io/gorm"
)

// jobRepo is the GORM-backed JobRepository.
type jobRepo struct {
	db *gorm.DB
}

var _ JobRepository = (*jobRepo)(nil)

// terminalStatuses are the statuses cleanup queries match on.
var terminalStatuses = []models.JobStatus{
	models.JobStatusCompleted,
	models.JobStatusFailed,
	models.JobStatusCancelled,
}

// NewJobRepository creates a JobRepository on top of db.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// GetByID returns the job, or nil when no row matches.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job %s: %w", id, err)
	}
	return &job, nil
}

// GetAll returns every job, newest first.
func (r *jobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting all jobs: %w", err)
	}
	return jobs, nil
}

// List returns one page of jobs, newest first, with the total row count
// for the filter. A nil status matches all jobs; offset and limit of 0
// are ignored.
func (r *jobRepo) List(ctx context.Context, status *models.JobStatus, offset, limit int) ([]*models.Job, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Job{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}

	query = query.Order("created_at DESC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []*models.Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

// GetByStatus returns jobs in the given status, oldest first.
func (r *jobRepo) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting jobs by status: %w", err)
	}
	return jobs, nil
}

// GetNextPending returns the oldest pending job, preserving FIFO
// submission order. Returns nil when the queue is empty.
func (r *jobRepo) GetNextPending(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusPending).
		Order("created_at ASC, id ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting next pending job: %w", err)
	}
	return &job, nil
}

// GetRunning returns jobs currently marked running.
func (r *jobRepo) GetRunning(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusRunning).
		Order("started_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting running jobs: %w", err)
	}
	return jobs, nil
}

func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

func (r *jobRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Delete(&models.Job{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	return nil
}

// ClearFinished deletes every job in a terminal status and reports how
// many rows went away.
func (r *jobRepo) ClearFinished(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ?", terminalStatuses).
		Delete(&models.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("clearing finished jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteFinishedBefore deletes terminal jobs whose completion time is
// older than the cutoff. The janitor uses this for history retention.
func (r *jobRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?", terminalStatuses, before).
		Delete(&models.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting finished jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkStaleRunning fails any job still marked running. Used at startup:
// a running row can only mean the previous process died mid-job.
func (r *jobRepo) MarkStaleRunning(ctx context.Context, reason string) (int64, error) {
	// UpdateColumns avoids BeforeUpdate hooks; stale rows may predate
	// current validation rules.
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ?", models.JobStatusRunning).
		UpdateColumns(map[string]any{
			"status":       models.JobStatusFailed,
			"error":        reason,
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("marking stale running jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

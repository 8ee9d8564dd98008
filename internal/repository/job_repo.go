package repository

import (
	"context"
	"strings"
	"time"

	"github.com/karsten/pillarcat/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles scrape job records.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.ScrapeJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ScrapeJob, error) {
	var job domain.ScrapeJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRunning transitions a queued job to running. Terminal jobs are left
// untouched so a redelivered event cannot resurrect them.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.ScrapeJob{}).
		Where("id = ? AND status NOT IN ?", id, []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"started_at": &now,
		}).Error
}

// UpdateProgress writes the polled progress snapshot of a running job.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress domain.JobProgress) error {
	return r.db.WithContext(ctx).Model(&domain.ScrapeJob{}).
		Where("id = ?", id).
		Update("progress", progress).Error
}

// Complete transitions a job to its terminal completed state with final counts.
func (r *JobRepository) Complete(ctx context.Context, id string, created, updated int, progress domain.JobProgress) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.ScrapeJob{}).
		Where("id = ? AND status NOT IN ?", id, []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"created":      created,
			"updated":      updated,
			"progress":     progress,
			"completed_at": &now,
		}).Error
}

// Fail transitions a job to its terminal failed state with a descriptive message.
func (r *JobRepository) Fail(ctx context.Context, id string, message string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.ScrapeJob{}).
		Where("id = ? AND status NOT IN ?", id, []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"error_log":    message,
			"completed_at": &now,
		}).Error
}

// AppendError adds a per-item error line to the job's error log without
// changing the job status.
func (r *JobRepository) AppendError(ctx context.Context, id string, message string) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	lines := job.ErrorLog
	if lines != "" && !strings.HasSuffix(lines, "\n") {
		lines += "\n"
	}
	lines += message
	return r.db.WithContext(ctx).Model(&domain.ScrapeJob{}).
		Where("id = ?", id).
		Update("error_log", lines).Error
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the job/step ledger: repository functions for
// ProcessingJob and ProcessingStep rows.
//
// The ledger is owned exclusively by the processing orchestrator. Every write
// is a single-row update keyed by primary key, so concurrent distribute steps
// of one job can persist their results without cross-row locking.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/curationhub/curation-backend/internal/domain"
)

// activeJobStatuses are the non-terminal job statuses.
var activeJobStatuses = []string{domain.JobStatusQueued, domain.JobStatusProcessing}

// CreateJobWithSteps inserts a job and its steps in one transaction. Missing
// IDs are generated.
func CreateJobWithSteps(ctx context.Context, db *gorm.DB, job *domain.ProcessingJob, steps []domain.ProcessingStep) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = uuid.NewString()
		}
		steps[i].JobID = job.ID
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if len(steps) == 0 {
			return nil
		}
		return tx.Create(&steps).Error
	})
}

// GetJob fetches a job by primary key, or ErrNotFound.
func GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.ProcessingJob, error) {
	var j domain.ProcessingJob
	if err := db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// GetActiveJob returns the non-terminal job for a (submission, feed) pair,
// or ErrNotFound when none is in flight. At most one such job exists at a
// time; starting another while one is active is a caller error.
func GetActiveJob(ctx context.Context, db *gorm.DB, submissionID, feedID string) (*domain.ProcessingJob, error) {
	var j domain.ProcessingJob
	err := db.WithContext(ctx).
		Where("submission_id = ? AND feed_id = ? AND status IN ?", submissionID, feedID, activeJobStatuses).
		First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobsBySubmissionFeed returns all jobs for a (submission, feed) pair,
// newest first.
func ListJobsBySubmissionFeed(ctx context.Context, db *gorm.DB, submissionID, feedID string) ([]domain.ProcessingJob, error) {
	var out []domain.ProcessingJob
	err := db.WithContext(ctx).
		Where("submission_id = ? AND feed_id = ?", submissionID, feedID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// UpdateJobStatus sets a job's status. A started timestamp is recorded the
// first time the job leaves queued; a completed timestamp must be written via
// CompleteJob so it reflects the last step's terminal transition.
func UpdateJobStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	updates := map[string]any{"status": status}
	if status == domain.JobStatusProcessing {
		now := time.Now().UTC()
		updates["started_at"] = &now
	}
	res := db.WithContext(ctx).
		Model(&domain.ProcessingJob{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CompleteJob records a job's terminal status and completion time.
func CompleteJob(ctx context.Context, db *gorm.DB, id, status string, completedAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ProcessingJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "completed_at": &completedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetStep fetches a step by primary key, or ErrNotFound.
func GetStep(ctx context.Context, db *gorm.DB, id string) (*domain.ProcessingStep, error) {
	var s domain.ProcessingStep
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListJobSteps returns a job's steps ordered by step order ascending.
func ListJobSteps(ctx context.Context, db *gorm.DB, jobID string) ([]domain.ProcessingStep, error) {
	var out []domain.ProcessingStep
	err := db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("step_order asc").
		Find(&out).Error
	return out, err
}

// MarkStepProcessing records that a step's plugin invocation has begun, along
// with the exact input it is invoked with.
func MarkStepProcessing(ctx context.Context, db *gorm.DB, id, input string, startedAt time.Time) error {
	return updateStep(ctx, db, id, map[string]any{
		"status":     domain.StepStatusProcessing,
		"input":      input,
		"started_at": &startedAt,
		"error":      "",
	})
}

// MarkStepSuccess records a successful invocation and its output.
func MarkStepSuccess(ctx context.Context, db *gorm.DB, id, output string, completedAt time.Time) error {
	return updateStep(ctx, db, id, map[string]any{
		"status":       domain.StepStatusSuccess,
		"output":       output,
		"completed_at": &completedAt,
		"error":        "",
	})
}

// MarkStepFailed records a failed invocation and the structured error text.
func MarkStepFailed(ctx context.Context, db *gorm.DB, id, errText string, completedAt time.Time) error {
	return updateStep(ctx, db, id, map[string]any{
		"status":       domain.StepStatusFailed,
		"error":        errText,
		"completed_at": &completedAt,
	})
}

// SkipPendingSteps marks every still-pending step of a job as skipped. Used
// when a transform step fails and the remaining chain cannot run.
func SkipPendingSteps(ctx context.Context, db *gorm.DB, jobID string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.ProcessingStep{}).
		Where("job_id = ? AND status = ?", jobID, domain.StepStatusPending).
		Updates(map[string]any{
			"status":       domain.StepStatusSkipped,
			"completed_at": &now,
		}).Error
}

// ResetSteps returns the given steps to pending, clearing output, error, and
// timestamps so they can be re-executed. Stored inputs are preserved; retry
// semantics decide whether an input is reused or recomputed upstream.
func ResetSteps(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.ProcessingStep{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":       domain.StepStatusPending,
			"output":       "",
			"error":        "",
			"started_at":   nil,
			"completed_at": nil,
		}).Error
}

// UpdateStepInput overwrites a step's stored input with an operator-supplied
// value (tweak-and-reprocess).
func UpdateStepInput(ctx context.Context, db *gorm.DB, id, input string) error {
	return updateStep(ctx, db, id, map[string]any{"input": input})
}

// ListStaleProcessingJobs returns jobs still marked processing whose last
// write (job or any step) is older than the cutoff. Such jobs are surfaced
// for manual retry rather than silently resumed, since distributor side
// effects may not be safely repeatable.
func ListStaleProcessingJobs(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.ProcessingJob, error) {
	var out []domain.ProcessingJob
	err := db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.JobStatusProcessing, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM processing_steps ps WHERE ps.job_id = processing_jobs.id AND ps.updated_at >= ?)", cutoff).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// updateStep applies a keyed single-row update, mapping zero matches to
// ErrNotFound.
func updateStep(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.ProcessingStep{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

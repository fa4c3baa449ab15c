// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Submission and
// SubmissionFeed rows.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// These repositories are designed to be wrapped by higher-level components
// (the ingestion poller and the moderation engine) which enforce the business
// rules: quotas, authority checks, and status monotonicity.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/curationhub/curation-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSubmission inserts a new Submission row. The ID is a randomly
// generated UUID (string) and SubmittedAt defaults to UTC now when unset.
//
// The caller guarantees uniqueness of ContentID at the business level; the
// unique index surfaces races as a constraint error.
func CreateSubmission(ctx context.Context, db *gorm.DB, s *domain.Submission) (*domain.Submission, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSubmission fetches a submission by primary key, or ErrNotFound.
func GetSubmission(ctx context.Context, db *gorm.DB, id string) (*domain.Submission, error) {
	var s domain.Submission
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubmissionByContentID fetches a submission by its platform-native
// content ID, or ErrNotFound.
func GetSubmissionByContentID(ctx context.Context, db *gorm.DB, contentID string) (*domain.Submission, error) {
	var s domain.Submission
	if err := db.WithContext(ctx).First(&s, "content_id = ?", contentID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubmissionByReference fetches a submission by the platform ID of the
// submit command that created it (curator_reference_id), or ErrNotFound.
// Used to resolve moderation replies back to their submission.
func GetSubmissionByReference(ctx context.Context, db *gorm.DB, referenceID string) (*domain.Submission, error) {
	var s domain.Submission
	if err := db.WithContext(ctx).First(&s, "curator_reference_id = ?", referenceID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSubmissionsByCuratorSince returns the number of submissions a curator
// created at or after the given instant. The poller uses this to enforce the
// per-curator daily quota.
func CountSubmissionsByCuratorSince(ctx context.Context, db *gorm.DB, curatorID string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("curator_id = ? AND submitted_at >= ?", curatorID, since).
		Count(&total).Error
	return total, err
}

// CreateSubmissionFeed inserts a pending SubmissionFeed row for the given
// (submission, feed) pair. The unique index on the pair rejects duplicates.
func CreateSubmissionFeed(ctx context.Context, db *gorm.DB, submissionID, feedID string) (*domain.SubmissionFeed, error) {
	sf := &domain.SubmissionFeed{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		FeedID:       feedID,
		Status:       domain.FeedStatusPending,
	}
	if err := db.WithContext(ctx).Create(sf).Error; err != nil {
		return nil, err
	}
	return sf, nil
}

// GetSubmissionFeed fetches the per-feed status row for a (submission, feed)
// pair, or ErrNotFound.
func GetSubmissionFeed(ctx context.Context, db *gorm.DB, submissionID, feedID string) (*domain.SubmissionFeed, error) {
	var sf domain.SubmissionFeed
	err := db.WithContext(ctx).
		First(&sf, "submission_id = ? AND feed_id = ?", submissionID, feedID).Error
	if err != nil {
		return nil, err
	}
	return &sf, nil
}

// ListSubmissionFeeds returns all per-feed status rows of one submission.
func ListSubmissionFeeds(ctx context.Context, db *gorm.DB, submissionID string) ([]domain.SubmissionFeed, error) {
	var out []domain.SubmissionFeed
	err := db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("feed_id asc").
		Find(&out).Error
	return out, err
}

// ResolveSubmissionFeed transitions a pending SubmissionFeed row to the given
// terminal status and records the moderation command that resolved it. The
// update is guarded on status = pending so a concurrent resolution loses
// cleanly; when no pending row matched, ErrNotFound is returned.
func ResolveSubmissionFeed(ctx context.Context, db *gorm.DB, submissionID, feedID, status, moderationReferenceID string) error {
	res := db.WithContext(ctx).
		Model(&domain.SubmissionFeed{}).
		Where("submission_id = ? AND feed_id = ? AND status = ?", submissionID, feedID, domain.FeedStatusPending).
		Updates(map[string]any{
			"status":                  status,
			"moderation_reference_id": moderationReferenceID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountSubmissionFeedsByFeed returns the number of status rows for a feed,
// optionally filtered by status (empty string means all).
func CountSubmissionFeedsByFeed(ctx context.Context, db *gorm.DB, feedID, status string) (int64, error) {
	q := db.WithContext(ctx).
		Model(&domain.SubmissionFeed{}).
		Where("feed_id = ?", feedID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListSubmissionFeedsByFeed returns a page of status rows for a feed ordered
// by creation time descending, optionally filtered by status, with the parent
// Submission preloaded. Use CountSubmissionFeedsByFeed for pagination totals.
func ListSubmissionFeedsByFeed(ctx context.Context, db *gorm.DB, feedID, status string, offset, limit int) ([]domain.SubmissionFeed, error) {
	q := db.WithContext(ctx).
		Preload("Submission").
		Where("feed_id = ?", feedID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.SubmissionFeed
	err := q.Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

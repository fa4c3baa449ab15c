// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// ModerationHistory audit log.
//
// Audit rows are write-once: there are intentionally no update or delete
// functions in this file. During restart reconciliation the audit log is the
// source of truth for SubmissionFeed status transitions.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/curationhub/curation-backend/internal/domain"
)

// CreateModerationHistory appends one audit row. OccurredAt defaults to UTC
// now when unset.
func CreateModerationHistory(ctx context.Context, db *gorm.DB, h *domain.ModerationHistory) (*domain.ModerationHistory, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.OccurredAt.IsZero() {
		h.OccurredAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(h).Error; err != nil {
		return nil, err
	}
	return h, nil
}

// ListModerationHistory returns all audit rows for a submission, oldest first.
func ListModerationHistory(ctx context.Context, db *gorm.DB, submissionID string) ([]domain.ModerationHistory, error) {
	var out []domain.ModerationHistory
	err := db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("occurred_at asc").
		Find(&out).Error
	return out, err
}

// ListUnappliedModeration returns audit rows whose corresponding
// SubmissionFeed row is still pending. A non-empty result means a crash
// occurred between the audit write and the status transition; the reconciler
// applies the recorded action on restart.
func ListUnappliedModeration(ctx context.Context, db *gorm.DB) ([]domain.ModerationHistory, error) {
	var out []domain.ModerationHistory
	err := db.WithContext(ctx).
		Joins("JOIN submission_feeds sf ON sf.submission_id = moderation_history.submission_id AND sf.feed_id = moderation_history.feed_id").
		Where("sf.status = ? AND sf.deleted_at IS NULL", domain.FeedStatusPending).
		Order("moderation_history.occurred_at asc").
		Find(&out).Error
	return out, err
}

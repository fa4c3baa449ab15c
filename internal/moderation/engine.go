// Package moderation implements the authority-checked state transition of a
// submission's per-feed status plus its audit trail.
//
// The invariant this package exists for: every pending→approved/rejected
// transition has exactly one ModerationHistory row, written before (in the
// same transaction as) the status change, and an unauthorized command never
// touches either table.
package moderation

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/feeds"
	"github.com/curationhub/curation-backend/internal/repo"
)

var (
	// ErrNotAuthorized is returned when the admin handle is not an approver
	// for the target feed on the configured platform.
	ErrNotAuthorized = errors.New("not authorized to moderate this feed")

	// ErrNotPending is returned when the target row was already resolved.
	// No-op for callers that race on the same row; distinguishable so the
	// API layer can report it without treating it as a failure.
	ErrNotPending = errors.New("submission feed is not pending")

	// ErrNotFound is returned when no (submission, feed) row exists.
	ErrNotFound = errors.New("submission feed not found")

	// ErrUnknownAction is returned for actions other than approve/reject.
	ErrUnknownAction = errors.New("unknown moderation action")
)

// Trigger starts pipeline processing for an approved (submission, feed) pair.
// Satisfied by a thin shim over the processing orchestrator.
type Trigger interface {
	StartJob(ctx context.Context, submissionID, feedID string) error
}

// Engine validates approver authority, transitions SubmissionFeed status, and
// writes the audit record. On approval it triggers the processing pipeline
// once when the feed's stream output is enabled.
type Engine struct {
	DB        *gorm.DB
	Feeds     feeds.Provider
	Approvers *feeds.ApproverCache

	// Platform is the social platform approver lists are matched against.
	Platform string

	// Trigger may be nil (e.g. in tests exercising only the state machine).
	Trigger Trigger
}

// NewEngine wires an Engine from its dependencies.
func NewEngine(db *gorm.DB, provider feeds.Provider, approvers *feeds.ApproverCache, platform string, trigger Trigger) *Engine {
	return &Engine{
		DB:        db,
		Feeds:     provider,
		Approvers: approvers,
		Platform:  platform,
		Trigger:   trigger,
	}
}

// Moderate applies one moderation decision to a (submission, feed) pair.
//
// referenceID is the platform ID of the moderation command that carried the
// decision; it is recorded on the resolved row (empty when the decision came
// through the HTTP API rather than a platform reply).
//
// Ordering: the audit row is written first and committed atomically with the
// status transition; the pipeline trigger fires only after the transaction
// commits. A trigger failure is logged, never propagated; the moderation
// itself has already happened.
func (e *Engine) Moderate(ctx context.Context, submissionID, feedID, adminHandle, action, note, referenceID string) (*domain.SubmissionFeed, error) {
	tr := otel.Tracer("moderation/Engine")
	ctx, span := tr.Start(ctx, "Moderate",
		trace.WithAttributes(
			attribute.String("submission.id", submissionID),
			attribute.String("feed.id", feedID),
			attribute.String("action", action),
		),
	)
	defer span.End()

	var status string
	switch action {
	case domain.ActionApprove:
		status = domain.FeedStatusApproved
	case domain.ActionReject:
		status = domain.FeedStatusRejected
	default:
		return nil, ErrUnknownAction
	}

	if !e.Approvers.IsApprover(feedID, e.Platform, adminHandle) {
		return nil, ErrNotAuthorized
	}

	sf, err := repo.GetSubmissionFeed(ctx, e.DB, submissionID, feedID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sf.Status != domain.FeedStatusPending {
		return nil, ErrNotPending
	}

	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Audit first: on recovery the audit row is the source of truth.
		if _, err := repo.CreateModerationHistory(ctx, tx, &domain.ModerationHistory{
			SubmissionID: submissionID,
			FeedID:       feedID,
			AdminHandle:  adminHandle,
			Action:       action,
			Note:         note,
		}); err != nil {
			return err
		}
		return repo.ResolveSubmissionFeed(ctx, tx, submissionID, feedID, status, referenceID)
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Lost a race with a concurrent resolution.
			return nil, ErrNotPending
		}
		return nil, err
	}

	log.Info().
		Str("submission_id", submissionID).
		Str("feed_id", feedID).
		Str("admin", adminHandle).
		Str("action", action).
		Msg("submission moderated")

	if action == domain.ActionApprove {
		e.triggerPipeline(ctx, submissionID, feedID)
	}

	return repo.GetSubmissionFeed(ctx, e.DB, submissionID, feedID)
}

// triggerPipeline starts processing for an approved pair when the feed's
// stream output is enabled.
func (e *Engine) triggerPipeline(ctx context.Context, submissionID, feedID string) {
	if e.Trigger == nil {
		return
	}
	fc, err := e.Feeds.GetFeedConfig(feedID)
	if err != nil || !fc.Outputs.Stream.Enabled {
		return
	}
	if err := e.Trigger.StartJob(ctx, submissionID, feedID); err != nil {
		log.Error().
			Str("submission_id", submissionID).
			Str("feed_id", feedID).
			Err(err).
			Msg("pipeline trigger failed")
	}
}

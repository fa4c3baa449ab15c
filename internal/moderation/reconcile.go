// Restart reconciliation. The audit log is authoritative: a history row with
// no matching status transition means the process died inside the crash
// window, and the transition is re-applied here. Jobs left processing with no
// step progress are surfaced for manual retry, never silently resumed:
// distributor side effects may already have happened.
package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/repo"
)

// Reconcile applies every audit row whose SubmissionFeed row is still
// pending, and re-triggers the pipeline for reconciled approvals. Returns the
// number of rows applied. Run once at startup before the poller starts.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	rows, err := repo.ListUnappliedModeration(ctx, e.DB)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, h := range rows {
		status := domain.FeedStatusApproved
		if h.Action == domain.ActionReject {
			status = domain.FeedStatusRejected
		}
		if err := repo.ResolveSubmissionFeed(ctx, e.DB, h.SubmissionID, h.FeedID, status, ""); err != nil {
			// A later audit row in this batch may already have resolved it.
			log.Warn().
				Str("submission_id", h.SubmissionID).
				Str("feed_id", h.FeedID).
				Err(err).
				Msg("reconcile: could not apply audit row")
			continue
		}
		applied++
		log.Info().
			Str("submission_id", h.SubmissionID).
			Str("feed_id", h.FeedID).
			Str("action", h.Action).
			Msg("reconcile: applied audit row")

		if h.Action == domain.ActionApprove {
			e.triggerPipeline(ctx, h.SubmissionID, h.FeedID)
		}
	}
	return applied, nil
}

// SurfaceStaleJobs returns jobs stuck processing with no writes for at least
// maxAge, logging each so an operator can decide between retry and reprocess.
func (e *Engine) SurfaceStaleJobs(ctx context.Context, maxAge time.Duration) ([]domain.ProcessingJob, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	jobs, err := repo.ListStaleProcessingJobs(ctx, e.DB, cutoff)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		log.Warn().
			Str("job_id", j.ID).
			Str("submission_id", j.SubmissionID).
			Str("feed_id", j.FeedID).
			Time("updated_at", j.UpdatedAt).
			Msg("stale processing job; needs manual retry or reprocess")
	}
	return jobs, nil
}

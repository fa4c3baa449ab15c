// Feed HTTP handlers.
//
// This file exposes REST endpoints for feed resources:
//   - GET /feeds                   (list configured feeds)
//   - GET /feeds/{id}/submissions  (list submissions for a feed, paginated)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. It also defines the service
// contracts and handler wiring shared by the moderation and job endpoints.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/feeds"
	"github.com/curationhub/curation-backend/internal/processing"
	"github.com/curationhub/curation-backend/internal/repo"
	"github.com/curationhub/curation-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ModerationService defines the moderation decision operation consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ModerationService interface {
	// Moderate applies an approve or reject decision to one
	// (submission, feed) pair on behalf of adminHandle.
	Moderate(ctx context.Context, submissionID, feedID, adminHandle, action, note, referenceID string) (*domain.SubmissionFeed, error)
}

// ProcessingService defines pipeline job operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ProcessingService interface {
	// GetJob returns a job with its full step ledger.
	GetJob(ctx context.Context, jobID string) (*processing.JobWithSteps, error)
	// RetryJob re-runs a terminal job from its first failed step forward.
	RetryJob(ctx context.Context, jobID string) (*processing.JobWithSteps, error)
	// RetryStep re-runs a single step with its stored input.
	RetryStep(ctx context.Context, stepID string) (*processing.JobWithSteps, error)
	// TweakAndReprocessStep overwrites a step's input, then re-runs it.
	TweakAndReprocessStep(ctx context.Context, stepID, newInput string) (*processing.JobWithSteps, error)
	// ReprocessJob starts a fresh job under the feed's current config.
	ReprocessJob(ctx context.Context, submissionID, feedID string) (*processing.JobWithSteps, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for feeds, moderation, and processing jobs.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	db      *gorm.DB
	feeds   feeds.Provider
	modSvc  ModerationService
	procSvc ProcessingService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(db *gorm.DB, provider feeds.Provider, modSvc ModerationService, procSvc ProcessingService) *Handlers {
	return &Handlers{db: db, feeds: provider, modSvc: modSvc, procSvc: procSvc}
}

// adminHandle extracts the acting moderator handle from Gin context (set by
// upstream middleware). If absent, it falls back to the "X-Admin-Handle"
// header. An empty result means the caller did not identify themselves.
func adminHandle(c *gin.Context) string {
	if v, ok := c.Get("adminHandle"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader("X-Admin-Handle"))
	}
	return ""
}

//
// DTOs
//

// FeedSummary is the public shape of a configured feed, including pending and
// approved submission counts.
type FeedSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Description   string `json:"description,omitempty"`
	StreamEnabled bool   `json:"stream_enabled"`
	Pending       int64  `json:"pending"`
	Approved      int64  `json:"approved"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// FeedSubmission is one list entry: the per-feed status row flattened together
// with its parent submission.
type FeedSubmission struct {
	Submission domain.Submission `json:"submission"`
	Status     string            `json:"status"`
	FeedID     string            `json:"feed_id"`
}

// ListFeedSubmissionsResponse wraps a page of feed submissions and pagination
// information.
type ListFeedSubmissionsResponse struct {
	Submissions []FeedSubmission `json:"submissions"`
	Pagination  Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListFeeds returns all configured feeds with their pending and approved
// submission counts.
func (h *Handlers) ListFeeds(c *gin.Context) {
	ctx := c.Request.Context()

	all := h.feeds.ListFeeds()
	out := make([]FeedSummary, 0, len(all))
	for _, fc := range all {
		pending, err := repo.CountSubmissionFeedsByFeed(ctx, h.db, fc.ID, domain.FeedStatusPending)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
		approved, err := repo.CountSubmissionFeedsByFeed(ctx, h.db, fc.ID, domain.FeedStatusApproved)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
		out = append(out, FeedSummary{
			ID:            fc.ID,
			Name:          fc.Name,
			Description:   fc.Description,
			StreamEnabled: fc.Outputs.Stream.Enabled,
			Pending:       pending,
			Approved:      approved,
		})
	}
	ok(c, http.StatusOK, gin.H{"feeds": out})
}

// ListFeedSubmissions returns a page of submissions associated with a feed,
// newest first, optionally filtered by status (?status=pending|approved|rejected).
func (h *Handlers) ListFeedSubmissions(c *gin.Context) {
	ctx := c.Request.Context()
	feedID := c.Param("id")

	if _, err := h.feeds.GetFeedConfig(feedID); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "feed not found")
		return
	}

	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", domain.FeedStatusPending, domain.FeedStatusApproved, domain.FeedStatusRejected:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be pending, approved, or rejected")
		return
	}

	page, pageSize := clampPagination(c)

	total, err := repo.CountSubmissionFeedsByFeed(ctx, h.db, feedID, status)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	rows, err := repo.ListSubmissionFeedsByFeed(ctx, h.db, feedID, status, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	items := make([]FeedSubmission, 0, len(rows))
	for _, sf := range rows {
		items = append(items, FeedSubmission{
			Submission: sf.Submission,
			Status:     sf.Status,
			FeedID:     sf.FeedID,
		})
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListFeedSubmissionsResponse{
		Submissions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

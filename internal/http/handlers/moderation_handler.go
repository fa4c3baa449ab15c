// Moderation HTTP handlers.
//
// This file exposes the REST surface of the moderation engine, mirroring the
// approve/reject commands that normally arrive as social-platform replies:
//   - POST /submissions/{id}/feeds/{feedId}/moderate
//
// The acting moderator identifies via the X-Admin-Handle header; authority is
// checked against the feed's configured approver list, exactly as it is for
// platform-side commands.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/curationhub/curation-backend/internal/moderation"
)

// ModerateRequest is the JSON payload for a moderation decision.
type ModerateRequest struct {
	// Action is "approve" or "reject".
	Action string `json:"action" binding:"required"`
	// Note is an optional free-form moderation note, kept in the audit log.
	Note string `json:"note"`
}

// Moderate applies an approve or reject decision to one (submission, feed)
// pair. Responses:
//   - 200 with the resolved status row on success
//   - 400 for a malformed body or unknown action
//   - 401 when no X-Admin-Handle is supplied
//   - 403 when the handle is not an approver of the feed
//   - 404 when the (submission, feed) pair does not exist
//   - 409 when the pair is already resolved
func (h *Handlers) Moderate(c *gin.Context) {
	admin := adminHandle(c)
	if admin == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-Admin-Handle header required")
		return
	}

	var req ModerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))

	sf, err := h.modSvc.Moderate(
		c.Request.Context(),
		c.Param("id"),
		c.Param("feedId"),
		admin,
		action,
		req.Note,
		"", // no platform message backs an API decision
	)
	if err != nil {
		switch {
		case errors.Is(err, moderation.ErrUnknownAction):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action must be approve or reject")
		case errors.Is(err, moderation.ErrNotAuthorized):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "handle is not an approver for this feed")
		case errors.Is(err, moderation.ErrNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found for this feed")
		case errors.Is(err, moderation.ErrNotPending):
			fail(c, http.StatusConflict, ErrCodeConflict, "submission already moderated for this feed")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeModerationFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, gin.H{
		"submission_id": sf.SubmissionID,
		"feed_id":       sf.FeedID,
		"status":        sf.Status,
		"action":        action,
	})
}

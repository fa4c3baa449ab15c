// Processing job HTTP handlers.
//
// This file exposes the job/step ledger and the operator replay operations:
//   - GET  /jobs/{id}                                      (job + step ledger)
//   - POST /jobs/{id}/retry                                (retry failed steps)
//   - POST /steps/{id}/retry                               (retry one step)
//   - POST /steps/{id}/tweak                               (tweak input + retry)
//   - POST /submissions/{id}/feeds/{feedId}/reprocess      (fresh job, current config)
//
// None of the replay operations run automatically; they are explicit operator
// actions against a terminal job.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/curationhub/curation-backend/internal/processing"
)

// TweakStepRequest is the JSON payload for overwriting a step's input before
// re-running it.
type TweakStepRequest struct {
	// Input replaces the step's stored input verbatim.
	Input string `json:"input" binding:"required"`
}

// GetJob returns one processing job together with its ordered step ledger.
func (h *Handlers) GetJob(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "job id must be a UUID")
		return
	}

	jws, err := h.procSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, processing.ErrJobNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "job not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, jws)
}

// RetryJob re-executes a terminal job from its first failed step forward. The
// job's config snapshot is reused, and already-succeeded transform outputs are
// not recomputed.
func (h *Handlers) RetryJob(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "job id must be a UUID")
		return
	}

	jws, err := h.procSvc.RetryJob(c.Request.Context(), jobID)
	if err != nil {
		h.failJobOp(c, err)
		return
	}
	ok(c, http.StatusOK, jws)
}

// RetryStep re-executes exactly one step of a terminal job with its stored
// input. Retrying a transform step also re-runs everything after it.
func (h *Handlers) RetryStep(c *gin.Context) {
	stepID := c.Param("id")
	if _, err := uuid.Parse(stepID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "step id must be a UUID")
		return
	}

	jws, err := h.procSvc.RetryStep(c.Request.Context(), stepID)
	if err != nil {
		h.failJobOp(c, err)
		return
	}
	ok(c, http.StatusOK, jws)
}

// TweakStep overwrites a step's stored input with an operator-supplied value
// and re-executes it, cascading like RetryStep for transform steps.
func (h *Handlers) TweakStep(c *gin.Context) {
	stepID := c.Param("id")
	if _, err := uuid.Parse(stepID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "step id must be a UUID")
		return
	}

	var req TweakStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "input required")
		return
	}

	jws, err := h.procSvc.TweakAndReprocessStep(c.Request.Context(), stepID, req.Input)
	if err != nil {
		h.failJobOp(c, err)
		return
	}
	ok(c, http.StatusOK, jws)
}

// ReprocessJob starts a brand-new job for a (submission, feed) pair under the
// feed's current configuration. Used after a feed's chain changed.
func (h *Handlers) ReprocessJob(c *gin.Context) {
	submissionID := c.Param("id")
	if _, err := uuid.Parse(submissionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}

	jws, err := h.procSvc.ReprocessJob(c.Request.Context(), submissionID, c.Param("feedId"))
	if err != nil {
		h.failJobOp(c, err)
		return
	}
	ok(c, http.StatusCreated, jws)
}

// failJobOp maps processing errors onto the shared error envelope.
func (h *Handlers) failJobOp(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processing.ErrJobNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "job not found")
	case errors.Is(err, processing.ErrStepNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "step not found")
	case errors.Is(err, processing.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
	case errors.Is(err, processing.ErrJobActive):
		fail(c, http.StatusConflict, ErrCodeJobActive, "a job is already active for this submission and feed")
	case errors.Is(err, processing.ErrStreamDisabled):
		fail(c, http.StatusConflict, ErrCodeStreamDisabled, "stream output is disabled for this feed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// Package processing implements the pipeline orchestrator: it turns an
// approved (submission, feed) pair into a ProcessingJob, executes the feed's
// transform/distribute chain through the plugin invoker, and persists every
// per-step outcome in the job/step ledger.
//
// This file centralizes the orchestrator's sentinel errors so that callers
// (HTTP handlers, the moderation engine) can branch on them consistently.
package processing

import "errors"

var (
	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("processing job not found")

	// ErrStepNotFound indicates the requested step does not exist.
	ErrStepNotFound = errors.New("processing step not found")

	// ErrSubmissionNotFound indicates the submission a job was requested for
	// does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrJobActive is returned when an operation requires that no job for the
	// (submission, feed) pair is in flight, or that the target job itself has
	// reached a terminal status. Starting or retrying over a live job is a
	// caller error the orchestrator never resolves implicitly.
	ErrJobActive = errors.New("a processing job is still active")

	// ErrStreamDisabled is returned when the feed's stream output is disabled
	// and no pipeline can be built for it.
	ErrStreamDisabled = errors.New("stream output is disabled for this feed")
)

// Package domain defines the persistence models for the curation pipeline:
// submissions, their per-feed moderation state, the append-only moderation
// audit log, and the processing job/step ledger. These types are mapped with
// GORM and form the core data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// SubmissionFeed statuses. A row starts pending and is resolved exactly once
// to approved or rejected; resolved rows are never moved back to pending.
const (
	FeedStatusPending  = "pending"
	FeedStatusApproved = "approved"
	FeedStatusRejected = "rejected"
)

// Moderation actions recorded in the audit log.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ProcessingJob statuses.
const (
	JobStatusQueued              = "queued"
	JobStatusProcessing          = "processing"
	JobStatusCompleted           = "completed"
	JobStatusCompletedWithErrors = "completed_with_errors"
	JobStatusFailed              = "failed"
)

// ProcessingStep statuses.
const (
	StepStatusPending    = "pending"
	StepStatusProcessing = "processing"
	StepStatusSuccess    = "success"
	StepStatusFailed     = "failed"
	StepStatusSkipped    = "skipped"
)

// Pipeline stages a step belongs to. Transform steps form a strict sequential
// chain; distribute steps are unordered siblings fed the final transform output.
const (
	StageTransform  = "transform"
	StageDistribute = "distribute"
)

// FeedIDAll is the synthetic feed every submission is associated with in
// addition to its hashtag-matched feeds.
const FeedIDAll = "all"

// Submission represents one curated piece of original content, tracked once
// per unique platform-native content ID.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ContentID: platform-native ID of the original content; unique.
//   - AuthorID / AuthorHandle: the original content's author.
//   - BodyText: the original content's text, as resolved at submission time.
//   - CuratorID / CuratorHandle: the account that submitted the content.
//   - CuratorNote: free-form note extracted from the submit command.
//   - CuratorReferenceID: the platform ID of the submit command message,
//     used to resolve later moderation replies; unique and indexed.
//   - SubmittedAt: when the submit command was processed.
type Submission struct {
	ID                 string         `json:"id"                   gorm:"type:char(36);primaryKey"`
	ContentID          string         `json:"content_id"           gorm:"type:varchar(64);not null;uniqueIndex:ux_submission_content"`
	AuthorID           string         `json:"author_id"            gorm:"type:varchar(64);not null"`
	AuthorHandle       string         `json:"author_handle"        gorm:"type:varchar(64);not null"`
	BodyText           string         `json:"body_text"            gorm:"type:text;not null"`
	CuratorID          string         `json:"curator_id"           gorm:"type:varchar(64);not null;index:idx_submission_curator"`
	CuratorHandle      string         `json:"curator_handle"       gorm:"type:varchar(64);not null"`
	CuratorNote        string         `json:"curator_note"         gorm:"type:text"`
	CuratorReferenceID string         `json:"curator_reference_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_submission_reference"`
	SubmittedAt        time.Time      `json:"submitted_at"         gorm:"index:idx_submission_curator"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-"                    gorm:"index"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }

// SubmissionFeed holds the per-feed moderation state of a submission.
// Exactly one row exists per (submission_id, feed_id) pair, enforced by a
// unique index.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SubmissionID: foreign key to the owning submission.
//   - FeedID: the target feed; "all" is the synthetic catch-all feed.
//   - Status: pending | approved | rejected (enforced by DB constraint).
//   - ModerationReferenceID: platform ID of the moderation command that
//     resolved this row; empty while pending.
type SubmissionFeed struct {
	ID                    string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	SubmissionID          string         `json:"submission_id"           gorm:"type:char(36);not null;uniqueIndex:ux_submission_feed,priority:1"`
	FeedID                string         `json:"feed_id"                 gorm:"type:varchar(64);not null;uniqueIndex:ux_submission_feed,priority:2;index:idx_feed_status,priority:1"`
	Status                string         `json:"status"                  gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','approved','rejected');index:idx_feed_status,priority:2"`
	ModerationReferenceID string         `json:"moderation_reference_id" gorm:"type:varchar(64)"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `json:"-"                       gorm:"index"`

	// Submission is the parent record. Feed rows are cascade-deleted if the
	// submission is removed.
	Submission Submission `json:"-" gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SubmissionFeed.
func (SubmissionFeed) TableName() string { return "submission_feeds" }

// ModerationHistory is the append-only audit log of moderation decisions.
// Rows are write-once: never updated, never deleted. A history row is written
// before (in the same transaction as) the corresponding SubmissionFeed status
// transition, and is treated as the source of truth during restart
// reconciliation.
type ModerationHistory struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	SubmissionID string    `json:"submission_id" gorm:"type:char(36);not null;index:idx_history_submission,priority:1"`
	FeedID       string    `json:"feed_id"       gorm:"type:varchar(64);not null;index:idx_history_submission,priority:2"`
	AdminHandle  string    `json:"admin_handle"  gorm:"type:varchar(64);not null"`
	Action       string    `json:"action"        gorm:"type:varchar(16);not null;check:action IN ('approve','reject')"`
	Note         string    `json:"note"          gorm:"type:text"`
	OccurredAt   time.Time `json:"occurred_at"   gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for ModerationHistory.
func (ModerationHistory) TableName() string { return "moderation_history" }

// ProcessingJob records one execution of a feed's stream pipeline against one
// submission.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SubmissionID / FeedID: the (submission, feed) pair this run serves.
//   - Status: queued | processing | completed | completed_with_errors | failed.
//   - ConfigSnapshot: JSON-serialized transform/distribute chain captured at
//     job creation, so later feed config edits never retroactively alter a
//     running or completed job's definition.
//   - StartedAt / CompletedAt: execution window; CompletedAt is set when the
//     last step reaches a terminal per-step state.
type ProcessingJob struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	SubmissionID   string         `json:"submission_id"   gorm:"type:char(36);not null;index:idx_job_submission_feed,priority:1"`
	FeedID         string         `json:"feed_id"         gorm:"type:varchar(64);not null;index:idx_job_submission_feed,priority:2"`
	Status         string         `json:"status"          gorm:"type:varchar(32);not null;check:status IN ('queued','processing','completed','completed_with_errors','failed')"`
	ConfigSnapshot string         `json:"config_snapshot" gorm:"type:text;not null"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for ProcessingJob.
func (ProcessingJob) TableName() string { return "processing_jobs" }

// IsTerminal reports whether the job has reached a terminal status.
func (j *ProcessingJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}

// ProcessingStep records one plugin invocation within a job. Transform steps
// are strictly ordered by StepOrder, each consuming the previous transform's
// output; distribute steps are unordered siblings consuming the final
// transform output.
//
// Config, Input, and Output are JSON-serialized blobs; the orchestrator treats
// them as opaque beyond passing them to the plugin invoker.
type ProcessingStep struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	JobID       string         `json:"job_id"      gorm:"type:char(36);not null;index:idx_step_job,priority:1"`
	StepOrder   int            `json:"step_order"  gorm:"not null;index:idx_step_job,priority:2"`
	Stage       string         `json:"stage"       gorm:"type:varchar(16);not null;check:stage IN ('transform','distribute')"`
	PluginName  string         `json:"plugin_name" gorm:"type:varchar(64);not null"`
	Config      string         `json:"config"      gorm:"type:text"`
	Input       string         `json:"input"       gorm:"type:text"`
	Output      string         `json:"output"      gorm:"type:text"`
	Status      string         `json:"status"      gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','processing','success','failed','skipped')"`
	Error       string         `json:"error,omitempty" gorm:"type:text"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`

	// Job is the owning pipeline run. Steps are cascade-deleted with it.
	Job ProcessingJob `json:"-" gorm:"foreignKey:JobID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ProcessingStep.
func (ProcessingStep) TableName() string { return "processing_steps" }

// IsTerminal reports whether the step has reached a terminal per-step status.
func (s *ProcessingStep) IsTerminal() bool {
	switch s.Status {
	case StepStatusSuccess, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

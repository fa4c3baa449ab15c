// Operator-triggered replay operations. None of these run automatically: a
// failed job stays failed until someone explicitly retries, reprocesses, or
// tweaks it.
package processing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/repo"
)

// RetryJob re-executes a terminal job from its first failed step forward,
// using the job's existing config snapshot (the step rows) and the stored
// outputs of prior successful steps. Already-succeeded transform steps are
// never re-invoked. Failed and skipped steps are reset to pending first.
func (o *Orchestrator) RetryJob(ctx context.Context, jobID string) (*JobWithSteps, error) {
	tr := otel.Tracer("processing/Orchestrator")
	ctx, span := tr.Start(ctx, "RetryJob",
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
	defer span.End()

	job, steps, err := o.terminalJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var resetIDs []string
	for _, s := range steps {
		if s.Status == domain.StepStatusFailed || s.Status == domain.StepStatusSkipped {
			resetIDs = append(resetIDs, s.ID)
		}
	}
	if err := repo.ResetSteps(ctx, o.DB, resetIDs); err != nil {
		return nil, err
	}
	if err := repo.UpdateJobStatus(ctx, o.DB, jobID, domain.JobStatusProcessing); err != nil {
		return nil, err
	}

	content, err := o.submissionContent(ctx, job.SubmissionID)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, jobID, content, nil)
}

// RetryStep re-executes exactly one step of a terminal job, re-invoking its
// plugin with the step's stored input and config.
//
// For a transform step, every later step (both stages) is reset to pending
// and re-executed in order, since downstream inputs depend on this step's
// output. For a distribute step, only that step is re-executed.
func (o *Orchestrator) RetryStep(ctx context.Context, stepID string) (*JobWithSteps, error) {
	tr := otel.Tracer("processing/Orchestrator")
	ctx, span := tr.Start(ctx, "RetryStep",
		trace.WithAttributes(attribute.String("step.id", stepID)),
	)
	defer span.End()

	return o.retryStep(ctx, stepID, nil)
}

// TweakAndReprocessStep overwrites a step's stored input with an
// operator-supplied value, then behaves like RetryStep for that step
// (cascading to later steps when it is a transform).
func (o *Orchestrator) TweakAndReprocessStep(ctx context.Context, stepID, newInput string) (*JobWithSteps, error) {
	tr := otel.Tracer("processing/Orchestrator")
	ctx, span := tr.Start(ctx, "TweakAndReprocessStep",
		trace.WithAttributes(attribute.String("step.id", stepID)),
	)
	defer span.End()

	return o.retryStep(ctx, stepID, &newInput)
}

// retryStep implements RetryStep and TweakAndReprocessStep. When inputOverride
// is non-nil it replaces the step's stored input before execution.
func (o *Orchestrator) retryStep(ctx context.Context, stepID string, inputOverride *string) (*JobWithSteps, error) {
	step, err := repo.GetStep(ctx, o.DB, stepID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}
	_, steps, err := o.terminalJob(ctx, step.JobID)
	if err != nil {
		return nil, err
	}

	input := step.Input
	if inputOverride != nil {
		input = *inputOverride
		if err := repo.UpdateStepInput(ctx, o.DB, stepID, input); err != nil {
			return nil, err
		}
	}

	// The target step always re-runs; a transform retry also invalidates
	// everything after it.
	resetIDs := []string{step.ID}
	if step.Stage == domain.StageTransform {
		for _, s := range steps {
			if s.StepOrder > step.StepOrder {
				resetIDs = append(resetIDs, s.ID)
			}
		}
	}
	if err := repo.ResetSteps(ctx, o.DB, resetIDs); err != nil {
		return nil, err
	}
	if err := repo.UpdateJobStatus(ctx, o.DB, step.JobID, domain.JobStatusProcessing); err != nil {
		return nil, err
	}

	job, err := repo.GetJob(ctx, o.DB, step.JobID)
	if err != nil {
		return nil, err
	}
	content, err := o.submissionContent(ctx, job.SubmissionID)
	if err != nil {
		return nil, err
	}
	// Pin the target step to its stored (possibly tweaked) input; cascaded
	// steps consume recomputed upstream outputs.
	return o.run(ctx, step.JobID, content, map[string]string{step.ID: input})
}

// ReprocessJob creates and executes a brand-new job for a (submission, feed)
// pair using the feed's current configuration, not any prior job's snapshot.
// Used when the feed's chain changed since the original run. The prior job
// must be terminal.
func (o *Orchestrator) ReprocessJob(ctx context.Context, submissionID, feedID string) (*JobWithSteps, error) {
	tr := otel.Tracer("processing/Orchestrator")
	ctx, span := tr.Start(ctx, "ReprocessJob",
		trace.WithAttributes(
			attribute.String("submission.id", submissionID),
			attribute.String("feed.id", feedID),
		),
	)
	defer span.End()

	// StartJob re-checks, but failing early keeps the error precise.
	if _, err := repo.GetActiveJob(ctx, o.DB, submissionID, feedID); err == nil {
		return nil, ErrJobActive
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return o.StartJob(ctx, submissionID, feedID)
}

// terminalJob loads a job and its steps, requiring a terminal status.
func (o *Orchestrator) terminalJob(ctx context.Context, jobID string) (*domain.ProcessingJob, []domain.ProcessingStep, error) {
	job, err := repo.GetJob(ctx, o.DB, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrJobNotFound
		}
		return nil, nil, err
	}
	if !job.IsTerminal() {
		return nil, nil, ErrJobActive
	}
	steps, err := repo.ListJobSteps(ctx, o.DB, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, steps, nil
}

// submissionContent returns the curated content a pipeline starts from.
func (o *Orchestrator) submissionContent(ctx context.Context, submissionID string) (string, error) {
	sub, err := repo.GetSubmission(ctx, o.DB, submissionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrSubmissionNotFound
		}
		return "", err
	}
	return sub.BodyText, nil
}

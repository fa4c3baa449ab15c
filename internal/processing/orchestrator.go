package processing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/curationhub/curation-backend/internal/domain"
	"github.com/curationhub/curation-backend/internal/feeds"
	"github.com/curationhub/curation-backend/internal/repo"
)

// Invoker is the plugin execution contract the orchestrator depends on.
// Failures returned from Invoke are recorded on the step and never propagate
// past the step boundary.
type Invoker interface {
	Invoke(ctx context.Context, name, stage, input string, config map[string]any) (string, error)
}

// Orchestrator owns the ProcessingJob/ProcessingStep ledger: it creates jobs
// from feed configuration, executes their steps through the plugin invoker,
// and persists every outcome. Jobs for different (submission, feed) pairs may
// run concurrently; within one job, transform steps are a strict sequential
// pipeline and distribute steps run concurrently.
type Orchestrator struct {
	DB      *gorm.DB
	Feeds   feeds.Provider
	Invoker Invoker
}

// NewOrchestrator wires an Orchestrator from its dependencies.
func NewOrchestrator(db *gorm.DB, provider feeds.Provider, inv Invoker) *Orchestrator {
	return &Orchestrator{DB: db, Feeds: provider, Invoker: inv}
}

// JobWithSteps is the job plus its ordered steps, as returned to callers.
type JobWithSteps struct {
	Job   domain.ProcessingJob   `json:"job"`
	Steps []domain.ProcessingStep `json:"steps"`
}

// GetJob returns a job with its steps, or ErrJobNotFound.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*JobWithSteps, error) {
	job, err := repo.GetJob(ctx, o.DB, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	steps, err := repo.ListJobSteps(ctx, o.DB, jobID)
	if err != nil {
		return nil, err
	}
	return &JobWithSteps{Job: *job, Steps: steps}, nil
}

// StartJob builds and executes a new job for an approved (submission, feed)
// pair using the feed's current stream configuration.
//
// The stream config is snapshotted into the job at creation, one step row is
// created per transform/distribute entry, and the pipeline is executed to a
// terminal status before returning. At most one non-terminal job may exist
// per pair; ErrJobActive is returned otherwise.
func (o *Orchestrator) StartJob(ctx context.Context, submissionID, feedID string) (*JobWithSteps, error) {
	tr := otel.Tracer("processing/Orchestrator")
	ctx, span := tr.Start(ctx, "StartJob",
		trace.WithAttributes(
			attribute.String("submission.id", submissionID),
			attribute.String("feed.id", feedID),
		),
	)
	defer span.End()

	if _, err := repo.GetActiveJob(ctx, o.DB, submissionID, feedID); err == nil {
		return nil, ErrJobActive
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	sub, err := repo.GetSubmission(ctx, o.DB, submissionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	fc, err := o.Feeds.GetFeedConfig(feedID)
	if err != nil {
		return nil, err
	}
	stream := fc.Outputs.Stream
	if !stream.Enabled {
		return nil, ErrStreamDisabled
	}

	snapshot, err := json.Marshal(stream)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.ProcessingJob{
		SubmissionID:   submissionID,
		FeedID:         feedID,
		Status:         domain.JobStatusProcessing, // queued is instantaneous
		ConfigSnapshot: string(snapshot),
		StartedAt:      &now,
	}
	steps := buildSteps(stream)
	if err := repo.CreateJobWithSteps(ctx, o.DB, job, steps); err != nil {
		return nil, err
	}

	return o.run(ctx, job.ID, sub.BodyText, nil)
}

// buildSteps creates the pending step rows for a stream config: transforms
// first in chain order, then distributes with continuing step order.
func buildSteps(stream feeds.StreamConfig) []domain.ProcessingStep {
	steps := make([]domain.ProcessingStep, 0, len(stream.Transform)+len(stream.Distribute))
	order := 0
	for _, sc := range stream.Transform {
		steps = append(steps, domain.ProcessingStep{
			StepOrder:  order,
			Stage:      domain.StageTransform,
			PluginName: sc.Plugin,
			Config:     marshalConfig(sc.Config),
			Status:     domain.StepStatusPending,
		})
		order++
	}
	for _, sc := range stream.Distribute {
		steps = append(steps, domain.ProcessingStep{
			StepOrder:  order,
			Stage:      domain.StageDistribute,
			PluginName: sc.Plugin,
			Config:     marshalConfig(sc.Config),
			Status:     domain.StepStatusPending,
		})
		order++
	}
	return steps
}

// marshalConfig serializes a step config blob; nil serializes to empty.
func marshalConfig(cfg map[string]any) string {
	if len(cfg) == 0 {
		return ""
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return string(raw)
}

// unmarshalConfig is the inverse of marshalConfig.
func unmarshalConfig(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil
	}
	return cfg
}

// run executes every pending step of a job to a terminal per-step state and
// records the job's terminal status.
//
// Transform steps run strictly in step order; each consumes the prior
// transform's output, with initialContent feeding the first. A transform
// failure skips all remaining pending steps and terminates the job failed.
// Distribute steps run concurrently against the final transform output; their
// failures are independent and downgrade the job to completed_with_errors.
//
// pinned maps step IDs to an input that must be used verbatim for that step
// (retry/tweak semantics) instead of the recomputed pipeline value.
func (o *Orchestrator) run(ctx context.Context, jobID, initialContent string, pinned map[string]string) (*JobWithSteps, error) {
	steps, err := repo.ListJobSteps(ctx, o.DB, jobID)
	if err != nil {
		return nil, err
	}

	current := initialContent
	transformFailed := false

	for i := range steps {
		step := &steps[i]
		if step.Stage != domain.StageTransform {
			continue
		}
		switch step.Status {
		case domain.StepStatusSuccess:
			// Already done on a prior attempt; reuse its output, never re-invoke.
			current = step.Output
			continue
		case domain.StepStatusFailed:
			// A transform that is failed and was not reset blocks the chain.
			transformFailed = true
		case domain.StepStatusPending:
		default:
			continue
		}
		if transformFailed {
			break
		}

		input := current
		if pin, ok := pinned[step.ID]; ok {
			input = pin
		}
		out, stepErr := o.executeStep(ctx, jobID, step, input)
		if stepErr != nil {
			transformFailed = true
			break
		}
		current = out
	}

	if transformFailed {
		if err := repo.SkipPendingSteps(ctx, o.DB, jobID); err != nil {
			return nil, err
		}
		if err := o.complete(ctx, jobID, domain.JobStatusFailed); err != nil {
			return nil, err
		}
		return o.GetJob(ctx, jobID)
	}

	// All transform steps succeeded (or none exist): fan out to distributors.
	finalOut := current
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)
	// Distribute steps left failed by a prior attempt count toward the
	// terminal status up front, before any goroutine touches the counter.
	for i := range steps {
		if steps[i].Stage == domain.StageDistribute && steps[i].Status == domain.StepStatusFailed {
			failures++
		}
	}
	for i := range steps {
		step := &steps[i]
		if step.Stage != domain.StageDistribute || step.Status != domain.StepStatusPending {
			continue
		}

		input := finalOut
		if pin, ok := pinned[step.ID]; ok {
			input = pin
		}
		wg.Add(1)
		go func(step *domain.ProcessingStep, input string) {
			defer wg.Done()
			if _, stepErr := o.executeStep(ctx, jobID, step, input); stepErr != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(step, input)
	}
	wg.Wait()

	status := domain.JobStatusCompleted
	if failures > 0 {
		status = domain.JobStatusCompletedWithErrors
	}
	if err := o.complete(ctx, jobID, status); err != nil {
		return nil, err
	}
	return o.GetJob(ctx, jobID)
}

// executeStep invokes one step's plugin and persists the outcome. Step-status
// writes are single-row updates keyed by step ID, so concurrent distribute
// steps never race on each other's rows. The returned error reports the
// plugin failure; persistence failures are returned as-is.
func (o *Orchestrator) executeStep(ctx context.Context, jobID string, step *domain.ProcessingStep, input string) (string, error) {
	if err := repo.MarkStepProcessing(ctx, o.DB, step.ID, input, time.Now().UTC()); err != nil {
		return "", err
	}

	out, invErr := o.Invoker.Invoke(ctx, step.PluginName, step.Stage, input, unmarshalConfig(step.Config))
	now := time.Now().UTC()
	if invErr != nil {
		stepFailures.WithLabelValues(step.PluginName, step.Stage).Inc()
		log.Warn().
			Str("job_id", jobID).
			Str("step_id", step.ID).
			Str("plugin", step.PluginName).
			Str("stage", step.Stage).
			Err(invErr).
			Msg("pipeline step failed")
		if err := repo.MarkStepFailed(ctx, o.DB, step.ID, invErr.Error(), now); err != nil {
			return "", err
		}
		return "", invErr
	}

	if err := repo.MarkStepSuccess(ctx, o.DB, step.ID, out, now); err != nil {
		return "", err
	}
	return out, nil
}

// complete records a job's terminal status, completion time, and metrics.
func (o *Orchestrator) complete(ctx context.Context, jobID, status string) error {
	jobsCompleted.WithLabelValues(status).Inc()
	return repo.CompleteJob(ctx, o.DB, jobID, status, time.Now().UTC())
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/travelclothingclub/api/internal/model"
	"github.com/travelclothingclub/api/internal/service"
)

// Runner executes one try-on prediction
type Runner interface {
	Run(ctx context.Context, input *model.TryOnInput, observer service.PollObserver) (*model.TryOnResult, error)
}

// JobStore persists job state
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, result *model.TryOnResult, archivedURL string) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

// Archiver copies a result image into long-lived storage
type Archiver interface {
	IsConfigured() bool
	Archive(ctx context.Context, jobID, imageURL string) (string, error)
}

// Broadcaster pushes job events to live subscribers
type Broadcaster interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, step string, prediction model.PredictionStatus)
	BroadcastComplete(jobID, imageURL, archivedURL string)
	BroadcastError(jobID, code, message, details string)
}

// Progress milestones
const (
	progressSubmitted = 10
	progressPolling   = 85
	progressArchiving = 90
)

// finalizeTimeout bounds the last job write, which outlives the task context
const finalizeTimeout = 5 * time.Second

// TryOnWorker processes queued try-on jobs
type TryOnWorker struct {
	runner   Runner
	jobs     JobStore
	archiver Archiver
	hub      Broadcaster
}

func NewTryOnWorker(runner Runner, jobs JobStore, archiver Archiver, hub Broadcaster) *TryOnWorker {
	return &TryOnWorker{
		runner:   runner,
		jobs:     jobs,
		archiver: archiver,
		hub:      hub,
	}
}

// ProcessTask handles a tryon:process task. Failures are recorded on the
// job and never retried, since each attempt spends upstream credits.
func (w *TryOnWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.TryOnJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %v", asynq.SkipRetry, err)
	}

	jobID := payload.JobID
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			log.Printf("[Worker] job %s expired before processing", jobID)
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		log.Printf("[Worker] job %s already %s, skipping", jobID, job.Status)
		return nil
	}

	log.Printf("[Worker] starting try-on job %s", jobID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.jobs.UpdateJobProgress(runCtx, jobID, progressSubmitted, "Submitting to try-on service"); err != nil {
		if errors.Is(err, service.ErrJobTerminal) {
			log.Printf("[Worker] job %s canceled before start", jobID)
			return nil
		}
		w.failJob(ctx, jobID, &service.ProxyError{
			Kind:    service.KindCanceled,
			Message: service.MessageTryOnFailed,
			Details: "Job could not be started",
			Err:     err,
		})
		return fmt.Errorf("failed to update job %s: %w: %v", jobID, asynq.SkipRetry, err)
	}
	w.hub.BroadcastProgress(jobID, progressSubmitted, model.JobStatusRunning, "Submitting to try-on service", "")

	observer := &jobObserver{
		ctx:    runCtx,
		cancel: cancel,
		jobID:  jobID,
		jobs:   w.jobs,
		hub:    w.hub,
	}

	result, err := w.runner.Run(runCtx, &payload.Input, observer)
	if err != nil {
		pe := service.AsProxyError(err)
		if pe.Kind == service.KindCanceled && observer.jobCanceled {
			log.Printf("[Worker] job %s canceled by client, discarding prediction", jobID)
			return nil
		}
		w.failJob(ctx, jobID, pe)
		return fmt.Errorf("try-on job %s failed: %w", jobID, asynq.SkipRetry)
	}

	archivedURL := ""
	if w.archiver != nil && w.archiver.IsConfigured() {
		w.hub.BroadcastProgress(jobID, progressArchiving, model.JobStatusRunning, "Archiving result", model.PredictionCompleted)
		archivedURL, err = w.archiver.Archive(ctx, jobID, result.ImageURL)
		if err != nil {
			// The upstream URL is still valid
			log.Printf("[Worker] failed to archive result for job %s: %v", jobID, err)
			archivedURL = ""
		}
	}

	finalCtx, finalCancel := finalContext(ctx)
	defer finalCancel()

	if err := w.jobs.CompleteJob(finalCtx, jobID, result, archivedURL); err != nil {
		if errors.Is(err, service.ErrJobTerminal) {
			log.Printf("[Worker] job %s canceled while finishing, discarding result", jobID)
			return nil
		}
		return fmt.Errorf("failed to save result for job %s: %w", jobID, err)
	}

	w.hub.BroadcastComplete(jobID, result.ImageURL, archivedURL)
	log.Printf("[Worker] try-on job %s completed after %d polls", jobID, result.Polls)
	return nil
}

// finalContext keeps terminal writes alive after the task context is
// canceled by shutdown or the task deadline.
func finalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func (w *TryOnWorker) failJob(ctx context.Context, jobID string, pe *service.ProxyError) {
	finalCtx, cancel := finalContext(ctx)
	defer cancel()

	if err := w.jobs.FailJob(finalCtx, jobID, pe.Error()); err != nil && !errors.Is(err, service.ErrJobTerminal) {
		log.Printf("[Worker] failed to mark job %s as failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, string(pe.Kind), pe.Message, pe.Details)
}

// jobObserver maps upstream polls onto job progress and stops the run
// when the job is canceled.
type jobObserver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	jobID       string
	jobs        JobStore
	hub         Broadcaster
	jobCanceled bool
}

func (o *jobObserver) OnPoll(attempt, maxPolls int, status model.PredictionStatus) {
	progress := progressSubmitted + attempt*(progressPolling-progressSubmitted)/maxPolls
	step := fmt.Sprintf("Waiting for try-on (%s)", status)

	if err := o.jobs.UpdateJobProgress(o.ctx, o.jobID, progress, step); err != nil {
		if errors.Is(err, service.ErrJobTerminal) {
			o.jobCanceled = true
			o.cancel()
			return
		}
		log.Printf("[Worker] failed to update progress for job %s: %v", o.jobID, err)
	}

	o.hub.BroadcastProgress(o.jobID, progress, model.JobStatusRunning, step, status)
}

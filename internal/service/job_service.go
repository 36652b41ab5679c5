package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/travelclothingclub/api/internal/model"
)

const (
	TaskTypeTryOn = "tryon:process"
	QueueTryOn    = "tryon"

	jobTTL = 24 * time.Hour

	maxUpdateAttempts = 10
)

// TaskEnqueuer is the subset of *asynq.Client the job service needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobService manages asynchronous try-on jobs
type JobService struct {
	redis    *redis.Client
	enqueuer TaskEnqueuer
}

func NewJobService(redisClient *redis.Client, enqueuer TaskEnqueuer) *JobService {
	return &JobService{
		redis:    redisClient,
		enqueuer: enqueuer,
	}
}

// StartTryOn stores a queued job and enqueues it for the worker
func (s *JobService) StartTryOn(ctx context.Context, userID string, input *model.TryOnInput) (*model.JobStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		UserID:    userID,
		CreatedAt: now,
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := NewTryOnTask(jobID, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Submission upstream is not idempotent, so a failed task is never replayed.
	_, err = s.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueTryOn),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(jobTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.JobStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current state of a job
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		ArchivedURL: job.ArchivedURL,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Result != nil {
		resp.TryOnImageURL = job.Result.ImageURL
	}

	return resp, nil
}

// CancelJob marks a job canceled. A prediction already submitted upstream
// keeps running; the worker discards its result.
func (s *JobService) CancelJob(ctx context.Context, jobID string) (*model.JobCancelResponse, error) {
	err := s.updateJob(ctx, jobID, func(job *model.Job) {
		job.Status = model.JobStatusCanceled
		now := time.Now()
		job.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}

	return &model.JobCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *JobService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	return s.updateJob(ctx, jobID, func(job *model.Job) {
		job.Progress = progress
		job.CurrentStep = step

		if job.Status == model.JobStatusQueued {
			job.Status = model.JobStatusRunning
			now := time.Now()
			job.StartedAt = &now
		}
	})
}

// CompleteJob marks job as succeeded (called by worker)
func (s *JobService) CompleteJob(ctx context.Context, jobID string, result *model.TryOnResult, archivedURL string) error {
	return s.updateJob(ctx, jobID, func(job *model.Job) {
		job.Status = model.JobStatusSucceeded
		job.Progress = 100
		job.CurrentStep = ""
		job.Result = result
		job.ArchivedURL = archivedURL
		now := time.Now()
		job.CompletedAt = &now
	})
}

// FailJob marks job as failed (called by worker)
func (s *JobService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	return s.updateJob(ctx, jobID, func(job *model.Job) {
		job.Status = model.JobStatusFailed
		job.Error = &errMsg
		now := time.Now()
		job.CompletedAt = &now
	})
}

// updateJob applies mutate to a non-terminal job as an optimistic
// check-and-set: the write is discarded and retried if the record changed
// after it was read, so a cancel can never be overwritten.
func (s *JobService) updateJob(ctx context.Context, jobID string, mutate func(job *model.Job)) error {
	key := jobKey(jobID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return ErrJobTerminal
		}

		mutate(&job)

		updated, err := json.Marshal(&job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, jobTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("job %s: too many concurrent updates", jobID)
}

// GetJob loads a job record
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *JobService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func jobKey(jobID string) string {
	return fmt.Sprintf("tryon:job:%s", jobID)
}

// NewTryOnTask builds the asynq task for a job
func NewTryOnTask(jobID string, input *model.TryOnInput) (*asynq.Task, error) {
	data, err := json.Marshal(model.TryOnJobPayload{
		JobID: jobID,
		Input: *input,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTryOn, data), nil
}

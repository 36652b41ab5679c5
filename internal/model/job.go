package model

import "time"

// Job represents an asynchronous try-on job
type Job struct {
	ID          string       `json:"id"`
	Status      JobStatus    `json:"status"`
	Progress    int          `json:"progress"`
	CurrentStep string       `json:"currentStep,omitempty"`
	Error       *string      `json:"error,omitempty"`
	Result      *TryOnResult `json:"result,omitempty"`
	ArchivedURL string       `json:"archivedUrl,omitempty"`
	UserID      string       `json:"userId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// TryOnJobPayload is the asynq task payload
type TryOnJobPayload struct {
	JobID string     `json:"jobId"`
	Input TryOnInput `json:"input"`
}

// JobStartResponse is returned when a job is queued
type JobStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse represents the status of a try-on job
type JobStatusResponse struct {
	JobID         string     `json:"jobId"`
	Status        JobStatus  `json:"status"`
	Progress      int        `json:"progress"`
	CurrentStep   string     `json:"currentStep,omitempty"`
	Error         *string    `json:"error,omitempty"`
	TryOnImageURL string     `json:"tryon_image_url,omitempty"`
	ArchivedURL   string     `json:"archivedUrl,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// JobCancelResponse represents the response for canceling a job
type JobCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

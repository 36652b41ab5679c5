package model

// Gender selects a fallback model photo
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// PredictionStatus is the upstream job state reported by the status endpoint
type PredictionStatus string

const (
	PredictionStarting   PredictionStatus = "starting"
	PredictionInQueue    PredictionStatus = "in_queue"
	PredictionProcessing PredictionStatus = "processing"
	PredictionCompleted  PredictionStatus = "completed"
	PredictionFailed     PredictionStatus = "failed"
)

// IsPending reports whether the prediction is still being worked on upstream.
func (s PredictionStatus) IsPending() bool {
	switch s {
	case PredictionStarting, PredictionInQueue, PredictionProcessing:
		return true
	}
	return false
}

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

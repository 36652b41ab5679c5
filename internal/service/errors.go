package service

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConfigured    = errors.New("FASHN_API_KEY is not configured")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidAPIKey    = errors.New("invalid or expired API key")
	ErrNoCredits        = errors.New("no credits available")
	ErrNoPredictionID   = errors.New("no prediction ID returned")
	ErrPredictionFailed = errors.New("prediction failed")
	ErrUnknownStatus    = errors.New("unknown prediction status")
	ErrPollTimeout      = errors.New("prediction timed out")

	// Job-related errors
	ErrJobNotFound = errors.New("job not found")
	ErrJobTerminal = errors.New("job already finished")
)

// ErrorKind classifies a proxy failure
type ErrorKind string

const (
	KindConfiguration      ErrorKind = "CONFIGURATION_ERROR"
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindUpstreamAuth       ErrorKind = "UPSTREAM_AUTH_ERROR"
	KindUpstreamSubmission ErrorKind = "UPSTREAM_SUBMISSION_ERROR"
	KindUpstreamJobFailure ErrorKind = "UPSTREAM_JOB_FAILED"
	KindUpstreamProtocol   ErrorKind = "UPSTREAM_PROTOCOL_ERROR"
	KindTimeout            ErrorKind = "TIMEOUT"
	KindCanceled           ErrorKind = "CANCELED"
)

// Stable values for the "error" field of a failure body.
const (
	MessageInvalidRequest = "Invalid request"
	MessageConfiguration  = "Server configuration error"
	MessageTryOnFailed    = "Failed to generate AI try-on"
)

// ProxyError is the single error type that crosses the try-on boundary.
// Details never include the API key.
type ProxyError struct {
	Kind    ErrorKind
	Message string
	Details string
	Err     error
}

func (e *ProxyError) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a response status. In debug mode every
// failure is reported as a 500.
func (e *ProxyError) HTTPStatus(debug bool) int {
	if e.Kind == KindValidation && !debug {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// NewValidationError builds a client-input failure
func NewValidationError(details string) *ProxyError {
	return &ProxyError{
		Kind:    KindValidation,
		Message: MessageInvalidRequest,
		Details: details,
		Err:     ErrInvalidInput,
	}
}

func newUpstreamError(kind ErrorKind, details string, err error) *ProxyError {
	return &ProxyError{
		Kind:    kind,
		Message: MessageTryOnFailed,
		Details: details,
		Err:     err,
	}
}

// AsProxyError converts any error into a *ProxyError, treating unknown
// errors as upstream failures.
func AsProxyError(err error) *ProxyError {
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe
	}
	return newUpstreamError(KindUpstreamProtocol, err.Error(), err)
}

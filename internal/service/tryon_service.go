package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/travelclothingclub/api/internal/client"
	"github.com/travelclothingclub/api/internal/config"
	"github.com/travelclothingclub/api/internal/model"
)

// PollObserver is notified after every status poll
type PollObserver interface {
	OnPoll(attempt, maxPolls int, status model.PredictionStatus)
}

// TryOnService turns the asynchronous upstream prediction API into a
// single blocking call: check credits, submit, then poll until a terminal state.
type TryOnService struct {
	provider     client.TryOnProvider
	models       config.ModelsConfig
	modelName    string
	pollInterval time.Duration
	maxPolls     int
	verbose      bool
}

func NewTryOnService(provider client.TryOnProvider, fashnCfg *config.FashnConfig, models config.ModelsConfig, verbose bool) *TryOnService {
	maxPolls := fashnCfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 30
	}
	return &TryOnService{
		provider:     provider,
		models:       models,
		modelName:    fashnCfg.ModelName,
		pollInterval: fashnCfg.PollInterval,
		maxPolls:     maxPolls,
		verbose:      verbose,
	}
}

// IsConfigured reports whether an upstream API key is present
func (s *TryOnService) IsConfigured() bool {
	return s.provider.IsConfigured()
}

// Run executes one try-on prediction. The observer may be nil.
func (s *TryOnService) Run(ctx context.Context, input *model.TryOnInput, observer PollObserver) (*model.TryOnResult, error) {
	if !s.provider.IsConfigured() {
		log.Printf("[TryOn] ✗ API key missing")
		return nil, &ProxyError{
			Kind:    KindConfiguration,
			Message: MessageConfiguration,
			Details: ErrNotConfigured.Error(),
			Err:     ErrNotConfigured,
		}
	}

	// Step 1: make sure the key works and has credits before uploading images
	if err := s.checkCredits(ctx); err != nil {
		return nil, err
	}

	// Step 2: submit the prediction
	predictionID, err := s.submit(ctx, input)
	if err != nil {
		return nil, err
	}

	// Step 3: poll until terminal or the cap is reached
	return s.poll(ctx, predictionID, observer)
}

func (s *TryOnService) checkCredits(ctx context.Context) error {
	credits, err := s.provider.GetCredits(ctx)
	if err != nil {
		log.Printf("[TryOn] ✗ credit check failed: %v", err)
		return newUpstreamError(KindUpstreamAuth, "Invalid or expired API key", fmt.Errorf("%w: %v", ErrInvalidAPIKey, err))
	}

	if s.verbose {
		log.Printf("[TryOn] credits available: %v", credits.Credits.Total)
	}

	if credits.Credits.Total <= 0 {
		log.Printf("[TryOn] ✗ no credits left")
		return newUpstreamError(KindUpstreamAuth, "No credits available", ErrNoCredits)
	}

	return nil
}

func (s *TryOnService) submit(ctx context.Context, input *model.TryOnInput) (string, error) {
	req := &client.RunRequest{
		ModelName: s.modelName,
		Inputs: client.RunInputs{
			ModelImage:   input.ModelImage,
			GarmentImage: input.GarmentImage,
		},
	}

	resp, err := s.provider.Run(ctx, req)
	if err != nil {
		log.Printf("[TryOn] ✗ submission failed: %v", err)
		return "", newUpstreamError(KindUpstreamSubmission, err.Error(), err)
	}

	if resp.ID == "" {
		if resp.Error != nil {
			log.Printf("[TryOn] ✗ submission rejected: %s", resp.Error.Text())
		}
		return "", newUpstreamError(KindUpstreamSubmission, "No prediction ID returned", ErrNoPredictionID)
	}

	log.Printf("[TryOn] prediction submitted: %s", resp.ID)
	return resp.ID, nil
}

func (s *TryOnService) poll(ctx context.Context, predictionID string, observer PollObserver) (*model.TryOnResult, error) {
	for attempt := 1; attempt <= s.maxPolls; attempt++ {
		job, err := s.provider.GetStatus(ctx, predictionID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.canceled(predictionID, ctx.Err())
			}
			log.Printf("[TryOn] Poll #%d (prediction=%s) — error: %v", attempt, predictionID, err)
			return nil, newUpstreamError(KindUpstreamProtocol, fmt.Sprintf("Status check failed: %v", err), err)
		}

		if s.verbose {
			log.Printf("[TryOn] Poll #%d/%d (prediction=%s) — status: %s", attempt, s.maxPolls, predictionID, job.Status)
		}
		if observer != nil {
			observer.OnPoll(attempt, s.maxPolls, job.Status)
		}

		switch {
		case job.Status == model.PredictionCompleted:
			if len(job.Output) == 0 || job.Output[0] == "" {
				return nil, newUpstreamError(KindUpstreamProtocol, "Prediction completed without output", ErrUnknownStatus)
			}
			log.Printf("[TryOn] prediction %s completed after %d polls", predictionID, attempt)
			return &model.TryOnResult{
				ImageURL:     job.Output[0],
				PredictionID: predictionID,
				Polls:        attempt,
			}, nil

		case job.Status == model.PredictionFailed:
			details := job.Error.Text()
			if details == "" {
				details = "Try-on generation failed"
			}
			log.Printf("[TryOn] ✗ prediction %s failed: %s", predictionID, details)
			return nil, newUpstreamError(KindUpstreamJobFailure, details, fmt.Errorf("%w: %s", ErrPredictionFailed, details))

		case job.Status.IsPending():
			// keep waiting

		default:
			log.Printf("[TryOn] ✗ prediction %s reported unknown status %q", predictionID, job.Status)
			return nil, newUpstreamError(KindUpstreamProtocol, fmt.Sprintf("Unknown prediction status: %s", job.Status), ErrUnknownStatus)
		}

		if attempt == s.maxPolls {
			break
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, s.canceled(predictionID, ctx.Err())
		case <-timer.C:
		}
	}

	log.Printf("[TryOn] ✗ prediction %s still pending after %d polls", predictionID, s.maxPolls)
	return nil, newUpstreamError(KindTimeout,
		fmt.Sprintf("Try-on generation timed out after %d status checks", s.maxPolls),
		ErrPollTimeout)
}

// canceled reports an abandoned poll loop. The upstream prediction keeps
// running; the API offers no cancel call.
func (s *TryOnService) canceled(predictionID string, err error) error {
	log.Printf("[TryOn] Poll (prediction=%s) — context cancelled: %v", predictionID, err)
	details := "Request cancelled before the try-on completed"
	if errors.Is(err, context.DeadlineExceeded) {
		details = "Request deadline exceeded before the try-on completed"
	}
	return newUpstreamError(KindCanceled, details, err)
}

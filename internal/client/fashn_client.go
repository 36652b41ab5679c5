package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/travelclothingclub/api/internal/config"
	"github.com/travelclothingclub/api/internal/model"
)

// TryOnProvider defines the upstream operations the try-on proxy needs
type TryOnProvider interface {
	GetCredits(ctx context.Context) (*CreditsResponse, error)
	Run(ctx context.Context, req *RunRequest) (*RunResponse, error)
	GetStatus(ctx context.Context, predictionID string) (*model.UpstreamJob, error)
	IsConfigured() bool
}

// FashnClient implements TryOnProvider for the Fashn.ai API
type FashnClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	verbose    bool
}

// CreditsResponse represents the account balance
type CreditsResponse struct {
	Credits struct {
		Total        float64 `json:"total"`
		Subscription float64 `json:"subscription,omitempty"`
		OnDemand     float64 `json:"on_demand,omitempty"`
	} `json:"credits"`
}

// RunInputs holds the two images of a try-on prediction
type RunInputs struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
}

// RunRequest represents the body of a prediction submission
type RunRequest struct {
	ModelName string    `json:"model_name"`
	Inputs    RunInputs `json:"inputs"`
}

// RunResponse represents the response of a prediction submission
type RunResponse struct {
	ID    string              `json:"id"`
	Error *model.UpstreamError `json:"error,omitempty"`
}

// APIError is returned for non-2xx upstream responses
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fashn API error (status %d): %s", e.StatusCode, e.Body)
}

// NewFashnClient creates a new Fashn API client
func NewFashnClient(cfg *config.FashnConfig, verbose bool) *FashnClient {
	return &FashnClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		verbose: verbose,
	}
}

// GetCredits retrieves the remaining credit balance for the API key
func (c *FashnClient) GetCredits(ctx context.Context) (*CreditsResponse, error) {
	var result CreditsResponse
	if err := c.get(ctx, "/v1/credits", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Run submits a try-on prediction
func (c *FashnClient) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	var result RunResponse
	if err := c.post(ctx, "/v1/run", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStatus retrieves the state of a prediction
func (c *FashnClient) GetStatus(ctx context.Context, predictionID string) (*model.UpstreamJob, error) {
	endpoint := fmt.Sprintf("/v1/status/%s", predictionID)
	var result model.UpstreamJob
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends a POST request with JSON body
func (c *FashnClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *FashnClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *FashnClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Fashn API] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Fashn API] ✗ %s %s — request failed: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Fashn API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	// Response bodies echo base64 images on some errors; only dump them in verbose mode.
	if c.verbose {
		log.Printf("[Fashn API] ← %d %s %s — %s", resp.StatusCode, req.Method, req.URL.Path, truncate(respBody, 512))
	} else {
		log.Printf("[Fashn API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.Path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(respBody, 512)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Fashn API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *FashnClient) IsConfigured() bool {
	return c.apiKey != ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

package model

import "encoding/json"

// TryOnRequest is the normalized ingress record, built from either the
// multipart or the JSON variant before any upstream call is made.
type TryOnRequest struct {
	GarmentImage *ImageInput
	ModelImage   *ImageInput
	Gender       Gender
}

// ImageInput is an uploaded image held in memory
type ImageInput struct {
	Data        []byte
	ContentType string
	Filename    string
}

// TryOnJSONRequest is the body of the application/json ingress variant
type TryOnJSONRequest struct {
	ImageBase64      string `json:"imageBase64" validate:"required,startswith=data:image/"`
	ModelImageBase64 string `json:"modelImageBase64" validate:"omitempty,startswith=data:image/"`
	Gender           Gender `json:"gender" validate:"omitempty,oneof=Male Female"`
}

// TryOnInput is what the proxy submits upstream: both images as URLs
// (the garment always as a data URL).
type TryOnInput struct {
	ModelImage   string `json:"modelImage"`
	GarmentImage string `json:"garmentImage"`
}

// TryOnResult is the outcome of a completed prediction
type TryOnResult struct {
	ImageURL     string `json:"imageUrl"`
	PredictionID string `json:"predictionId"`
	Polls        int    `json:"polls"`
}

// TryOnResponse is the synchronous success body. The URL is repeated under
// "output" for older clients.
type TryOnResponse struct {
	TryOnImageURL string `json:"tryon_image_url"`
	Output        string `json:"output"`
}

// UpstreamJob mirrors the status endpoint response
type UpstreamJob struct {
	ID     string           `json:"id"`
	Status PredictionStatus `json:"status"`
	Output []string         `json:"output,omitempty"`
	Error  *UpstreamError   `json:"error,omitempty"`
}

// UpstreamError accepts both a bare string and an object with a message,
// since the status endpoint has returned both shapes.
type UpstreamError struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *UpstreamError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		e.Message = msg
		return nil
	}

	type plain UpstreamError
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = UpstreamError(obj)
	return nil
}

// Text returns the most descriptive message available
func (e *UpstreamError) Text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Name
}

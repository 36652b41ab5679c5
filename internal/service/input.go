package service

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/travelclothingclub/api/internal/model"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// BuildInput validates a normalized request and resolves the model image:
// the uploaded photo when present, otherwise the stock photo for the gender.
// With strict set, images must be JPEG/PNG/WebP and at most maxSize bytes.
func (s *TryOnService) BuildInput(req *model.TryOnRequest, strict bool, maxSize int64) (*model.TryOnInput, error) {
	if req.GarmentImage == nil || len(req.GarmentImage.Data) == 0 {
		return nil, NewValidationError("Clothing image is required")
	}

	if strict {
		if err := ValidateImage("Clothing image", req.GarmentImage, maxSize); err != nil {
			return nil, err
		}
	}

	input := &model.TryOnInput{
		GarmentImage: DataURL(req.GarmentImage),
	}

	if req.ModelImage != nil && len(req.ModelImage.Data) > 0 {
		if strict {
			if err := ValidateImage("Model image", req.ModelImage, maxSize); err != nil {
				return nil, err
			}
		}
		input.ModelImage = DataURL(req.ModelImage)
		return input, nil
	}

	switch req.Gender {
	case model.GenderMale:
		input.ModelImage = s.models.MaleURL
	case model.GenderFemale:
		input.ModelImage = s.models.FemaleURL
	case "":
		return nil, NewValidationError("Either a model image or a gender (Male or Female) is required")
	default:
		return nil, NewValidationError(fmt.Sprintf("Invalid gender %q: expected Male or Female", req.Gender))
	}

	return input, nil
}

// ValidateImage checks the sniffed content type and the size of an image.
func ValidateImage(label string, img *model.ImageInput, maxSize int64) error {
	if maxSize > 0 && int64(len(img.Data)) > maxSize {
		return NewValidationError(fmt.Sprintf("%s exceeds the %d MB size limit", label, maxSize/(1024*1024)))
	}

	detected := mimetype.Detect(img.Data).String()
	if !allowedImageTypes[detected] {
		return NewValidationError(fmt.Sprintf("%s has unsupported type %s. Supported: JPEG, PNG, WebP", label, detected))
	}

	img.ContentType = detected
	return nil
}

// DataURL encodes an image as a base64 data URL
func DataURL(img *model.ImageInput) string {
	contentType := img.ContentType
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = mimetype.Detect(img.Data).String()
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(img.Data))
}

// ParseDataURL decodes a "data:image/...;base64,..." string
func ParseDataURL(label, dataURL string) (*model.ImageInput, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, NewValidationError(fmt.Sprintf("%s must be a base64 data URL", label))
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("%s is not valid base64", label))
	}
	if len(data) == 0 {
		return nil, NewValidationError(fmt.Sprintf("%s is empty", label))
	}

	return &model.ImageInput{
		Data:        data,
		ContentType: strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"),
	}, nil
}

package handler

import (
	"fmt"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/travelclothingclub/api/internal/config"
	"github.com/travelclothingclub/api/internal/model"
	"github.com/travelclothingclub/api/internal/service"
)

// Multipart field names
const (
	fieldClothingImage = "clothing_image"
	fieldModelImage    = "model_image"
	fieldGender        = "gender"
)

// Ingress normalizes both request variants (multipart upload and JSON with
// data URLs) into a model.TryOnRequest.
type Ingress struct {
	validator *validator.Validate
	upload    config.UploadConfig
}

func NewIngress(v *validator.Validate, upload config.UploadConfig) *Ingress {
	return &Ingress{
		validator: v,
		upload:    upload,
	}
}

// Parse reads the request body. The returned cleanup func is never nil and
// must be called on every path; it removes any temporary upload files.
func (i *Ingress) Parse(c *fiber.Ctx) (*model.TryOnRequest, func(), error) {
	noop := func() {}

	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		return i.parseMultipart(c)
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		req, err := i.parseJSON(c)
		return req, noop, err
	default:
		return nil, noop, service.NewValidationError("Content-Type must be multipart/form-data or application/json")
	}
}

func (i *Ingress) parseMultipart(c *fiber.Ctx) (*model.TryOnRequest, func(), error) {
	noop := func() {}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, service.NewValidationError("Invalid multipart form")
	}

	dir, err := os.MkdirTemp(i.upload.TempDir, "tryon-*")
	if err != nil {
		log.Printf("[TryOn] ✗ failed to create upload dir: %v", err)
		return nil, noop, &service.ProxyError{
			Kind:    service.KindConfiguration,
			Message: service.MessageConfiguration,
			Details: "Upload storage unavailable",
			Err:     err,
		}
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[TryOn] failed to remove upload dir %s: %v", dir, err)
		}
	}

	garment, err := i.saveFormFile(c, firstFile(form.File[fieldClothingImage]), dir)
	if err != nil {
		return nil, cleanup, err
	}
	if garment == nil {
		return nil, cleanup, service.NewValidationError("Clothing image is required")
	}

	modelImage, err := i.saveFormFile(c, firstFile(form.File[fieldModelImage]), dir)
	if err != nil {
		return nil, cleanup, err
	}

	return &model.TryOnRequest{
		GarmentImage: garment,
		ModelImage:   modelImage,
		Gender:       normalizeGender(firstValue(form.Value[fieldGender])),
	}, cleanup, nil
}

// saveFormFile writes an uploaded part into dir and reads it back.
func (i *Ingress) saveFormFile(c *fiber.Ctx, fh *multipart.FileHeader, dir string) (*model.ImageInput, error) {
	if fh == nil {
		return nil, nil
	}

	if i.upload.StrictValidation && i.upload.MaxSize > 0 && fh.Size > i.upload.MaxSize {
		return nil, service.NewValidationError(fmt.Sprintf("%s exceeds the %d MB size limit", fh.Filename, i.upload.MaxSize/(1024*1024)))
	}

	path := filepath.Join(dir, uuid.New().String()+filepath.Ext(fh.Filename))
	if err := c.SaveFile(fh, path); err != nil {
		return nil, service.NewValidationError("Failed to read uploaded file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, service.NewValidationError("Failed to read uploaded file")
	}

	return &model.ImageInput{
		Data:        data,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Filename:    fh.Filename,
	}, nil
}

func (i *Ingress) parseJSON(c *fiber.Ctx) (*model.TryOnRequest, error) {
	var body model.TryOnJSONRequest
	if err := c.BodyParser(&body); err != nil {
		return nil, service.NewValidationError("Invalid request body")
	}

	body.Gender = normalizeGender(string(body.Gender))
	if err := i.validator.Struct(&body); err != nil {
		return nil, service.NewValidationError(formatValidationErrors(err))
	}

	garment, err := service.ParseDataURL("imageBase64", body.ImageBase64)
	if err != nil {
		return nil, err
	}

	req := &model.TryOnRequest{
		GarmentImage: garment,
		Gender:       body.Gender,
	}

	if body.ModelImageBase64 != "" {
		req.ModelImage, err = service.ParseDataURL("modelImageBase64", body.ModelImageBase64)
		if err != nil {
			return nil, err
		}
	}

	return req, nil
}

// Multipart parsers hand back every field as a list; only the first value counts.
func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func firstFile(files []*multipart.FileHeader) *multipart.FileHeader {
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

func normalizeGender(v string) model.Gender {
	switch {
	case strings.EqualFold(v, string(model.GenderMale)):
		return model.GenderMale
	case strings.EqualFold(v, string(model.GenderFemale)):
		return model.GenderFemale
	}
	return model.Gender(strings.TrimSpace(v))
}

func formatValidationErrors(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return "Validation failed"
	}
	parts := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field(), e.Tag()))
	}
	sort.Strings(parts)
	return "Validation failed: " + strings.Join(parts, ", ")
}

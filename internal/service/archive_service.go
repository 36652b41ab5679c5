package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/travelclothingclub/api/internal/client"
)

const maxArchiveSize = 20 * 1024 * 1024 // 20MB

// ArchiveService copies finished try-on images into our own bucket, since
// upstream result URLs expire.
type ArchiveService struct {
	storage    client.StorageClient
	httpClient *http.Client
}

// NewArchiveService creates an archive service. A nil storage client makes
// Archive a no-op.
func NewArchiveService(storage client.StorageClient) *ArchiveService {
	return &ArchiveService{
		storage: storage,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsConfigured returns true if results are archived
func (s *ArchiveService) IsConfigured() bool {
	return s.storage != nil
}

// Archive downloads imageURL and stores it under tryon/{jobID}.{ext},
// returning the stored object's public URL.
func (s *ArchiveService) Archive(ctx context.Context, jobID, imageURL string) (string, error) {
	if s.storage == nil {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("result download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read result: %w", err)
	}
	if len(data) > maxArchiveSize {
		return "", fmt.Errorf("result image exceeds %d bytes", maxArchiveSize)
	}

	mt := mimetype.Detect(data)
	key := fmt.Sprintf("tryon/%s%s", jobID, mt.Extension())

	return s.storage.Upload(ctx, key, bytes.NewReader(data), mt.String())
}

package files

import (
	"log/slog"
	"time"
)

// Service provides application-level file operations
type Service struct {
	storage   FileStorage
	repo      FileRepository
	limiter   *RateLimiter
	previews  PreviewGenerator
	retention time.Duration
}

// NewService creates a new file service
func NewService(storage FileStorage, repo FileRepository, limiter *RateLimiter, previews PreviewGenerator, retention time.Duration) *Service {
	return &Service{
		storage:   storage,
		repo:      repo,
		limiter:   limiter,
		previews:  previews,
		retention: retention,
	}
}

// UploadResult represents the result of a file upload
type UploadResult struct {
	File         *File
	Preview      *Preview
	PreviewError string
}

// Upload validates, rate-limits and persists one upload, then generates
// a bounded preview of the stored content. Validation and rate limiting
// run before any byte of the body is consumed; a preview failure
// degrades the result but never fails an already-stored upload.
func (s *Service) Upload(req *UploadRequest) (*UploadResult, error) {
	if err := Validate(req.Name); err != nil {
		return nil, err
	}

	if err := s.limiter.Admit(req.Identity, time.Now()); err != nil {
		return nil, err
	}

	file, err := s.storage.Save(req.Name, req.Content)
	if err != nil {
		return nil, err
	}

	// The directory is the source of truth; the metadata index is
	// advisory, so a failed insert does not undo the stored file.
	if err := s.repo.Create(file); err != nil {
		slog.Error("Failed to record file metadata", "storage_name", file.StorageName, "error", err)
	}

	result := &UploadResult{File: file}

	preview, err := s.previews.Generate(file.Path)
	if err != nil {
		slog.Warn("Preview generation failed", "storage_name", file.StorageName, "error", err)
		result.PreviewError = err.Error()
		return result, nil
	}
	result.Preview = preview

	return result, nil
}

// List returns metadata for files stored within the retention window
func (s *Service) List() ([]*File, error) {
	return s.repo.List(time.Now().Add(-s.retention))
}

package files

import (
	"io"
	"time"
)

// File represents the metadata of a stored file
type File struct {
	// StorageName is the unique on-disk name (token + sanitized original name).
	StorageName string `json:"storage_name"`
	// Name is the sanitized original filename.
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadRequest represents a file upload request
type UploadRequest struct {
	// Identity keys rate-limit state, derived from the client's network origin.
	Identity string
	Name     string
	Content  io.Reader
}

// Preview is a bounded prefix of a stored file's content.
// Rows is set for tabular formats, Lines for text-like formats.
type Preview struct {
	Format    string     `json:"format"`
	Rows      [][]string `json:"rows,omitempty"`
	Lines     []string   `json:"lines,omitempty"`
	Truncated bool       `json:"truncated"`
}

// FileStorage defines the interface for the physical file storage
type FileStorage interface {
	// Save streams content to disk under a collision-proof name
	// derived from the declared filename.
	Save(name string, content io.Reader) (*File, error)
}

// FileRepository defines the interface for storing and retrieving file metadata
type FileRepository interface {
	Create(file *File) error
	List(since time.Time) ([]*File, error)
	Delete(storageName string) error
	Prune(olderThan time.Time) error
}

// PreviewGenerator produces a bounded preview of a stored file
type PreviewGenerator interface {
	Generate(path string) (*Preview, error)
}

package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/updrop-io/updrop/internal/files"
)

const (
	// chunkSize bounds how much of an upload body is ever held in
	// memory; the write path never buffers more than one chunk.
	chunkSize = 1 << 20

	// TempSuffix marks in-flight uploads. Files carrying it are never
	// finalized artifacts and must be ignored by directory sweeps.
	TempSuffix = ".part"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Storage implements files.FileStorage on a single flat directory
type Storage struct {
	dataDir string
	maxSize int64
}

// NewStorage creates a filesystem storage rooted at dataDir, rejecting
// streams larger than maxSize bytes.
func NewStorage(dataDir string, maxSize int64) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Storage{
		dataDir: dataDir,
		maxSize: maxSize,
	}, nil
}

// Save streams content to a temporary file in fixed-size chunks and
// renames it to its final name once the stream is fully written. The
// rename stays within dataDir, so it is atomic on the host filesystem
// and the final name never exposes partial bytes. Every failure path
// removes the temporary file.
func (s *Storage) Save(name string, content io.Reader) (*files.File, error) {
	safe := sanitizeName(name)
	storageName := uuid.NewString() + "_" + safe
	finalPath := filepath.Join(s.dataDir, storageName)
	tempPath := finalPath + TempSuffix

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp file: %w", files.ErrWriteFailure, err)
	}

	size, err := s.copyChunks(f, content)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return nil, err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("%w: %w", files.ErrWriteFailure, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("%w: %w", files.ErrWriteFailure, err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("%w: failed to finalize file: %w", files.ErrWriteFailure, err)
	}

	return &files.File{
		StorageName: storageName,
		Name:        safe,
		Extension:   strings.ToLower(filepath.Ext(safe)),
		Path:        finalPath,
		Size:        size,
		CreatedAt:   time.Now(),
	}, nil
}

// copyChunks copies content to w one chunk at a time, aborting the
// moment the running total exceeds maxSize.
func (s *Storage) copyChunks(w io.Writer, content io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var size int64
	for {
		n, rerr := content.Read(buf)
		if n > 0 {
			size += int64(n)
			if s.maxSize > 0 && size > s.maxSize {
				return size, fmt.Errorf("%w: upload exceeds %d bytes", files.ErrSizeLimitExceeded, s.maxSize)
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return size, fmt.Errorf("%w: %w", files.ErrWriteFailure, werr)
			}
		}
		if rerr == io.EOF {
			return size, nil
		}
		if rerr != nil {
			return size, fmt.Errorf("%w: %w", files.ErrClientDisconnected, rerr)
		}
	}
}

// sanitizeName reduces a declared filename to a safe base name. Path
// separators and traversal segments are stripped, so the stored path
// always stays within the data directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean(name))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		name = "upload"
	}
	return name
}

var _ files.FileStorage = (*Storage)(nil)

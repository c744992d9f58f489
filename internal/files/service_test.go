package files

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStorage struct {
	saved   []string
	saveErr error
}

func (s *stubStorage) Save(name string, content io.Reader) (*File, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	size, err := io.Copy(io.Discard, content)
	if err != nil {
		return nil, err
	}
	s.saved = append(s.saved, name)
	return &File{
		StorageName: "token_" + name,
		Name:        name,
		Path:        "/data/token_" + name,
		Size:        size,
		CreatedAt:   time.Now(),
	}, nil
}

type stubRepo struct {
	created   []*File
	createErr error
}

func (r *stubRepo) Create(file *File) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, file)
	return nil
}

func (r *stubRepo) List(since time.Time) ([]*File, error) { return r.created, nil }
func (r *stubRepo) Delete(storageName string) error       { return nil }
func (r *stubRepo) Prune(olderThan time.Time) error       { return nil }

type stubPreviews struct {
	preview *Preview
	err     error
}

func (p *stubPreviews) Generate(path string) (*Preview, error) {
	return p.preview, p.err
}

func newTestService(storage *stubStorage, repo *stubRepo, previews *stubPreviews) *Service {
	return NewService(storage, repo, NewRateLimiter(2*time.Second), previews, 24*time.Hour)
}

func TestServiceUpload(t *testing.T) {
	t.Run("success with preview", func(t *testing.T) {
		storage := &stubStorage{}
		repo := &stubRepo{}
		previews := &stubPreviews{preview: &Preview{Format: "csv", Rows: [][]string{{"a", "b"}}}}
		svc := newTestService(storage, repo, previews)

		result, err := svc.Upload(&UploadRequest{
			Identity: "10.0.0.1",
			Name:     "data.csv",
			Content:  strings.NewReader("a,b\n1,2\n"),
		})
		require.NoError(t, err)
		assert.Equal(t, "data.csv", result.File.Name)
		assert.Equal(t, int64(8), result.File.Size)
		assert.Equal(t, "csv", result.Preview.Format)
		assert.Empty(t, result.PreviewError)
		assert.Len(t, repo.created, 1)
	})

	t.Run("rejected type touches no storage", func(t *testing.T) {
		storage := &stubStorage{}
		svc := newTestService(storage, &stubRepo{}, &stubPreviews{})

		_, err := svc.Upload(&UploadRequest{
			Identity: "10.0.0.1",
			Name:     "run.exe",
			Content:  strings.NewReader("MZ"),
		})
		assert.ErrorIs(t, err, ErrUnsupportedFileType)
		assert.Empty(t, storage.saved)
	})

	t.Run("rate-limited before storage", func(t *testing.T) {
		storage := &stubStorage{}
		svc := newTestService(storage, &stubRepo{}, &stubPreviews{preview: &Preview{}})

		_, err := svc.Upload(&UploadRequest{Identity: "10.0.0.1", Name: "a.csv", Content: strings.NewReader("x")})
		require.NoError(t, err)

		_, err = svc.Upload(&UploadRequest{Identity: "10.0.0.1", Name: "b.csv", Content: strings.NewReader("y")})
		assert.ErrorIs(t, err, ErrRateLimitExceeded)
		assert.Len(t, storage.saved, 1)
	})

	t.Run("preview failure degrades the result", func(t *testing.T) {
		previews := &stubPreviews{err: errors.New("unreadable format: bad header")}
		svc := newTestService(&stubStorage{}, &stubRepo{}, previews)

		result, err := svc.Upload(&UploadRequest{
			Identity: "10.0.0.1",
			Name:     "data.csv",
			Content:  strings.NewReader("a,b\n"),
		})
		require.NoError(t, err)
		assert.Nil(t, result.Preview)
		assert.Contains(t, result.PreviewError, "unreadable format")
	})

	t.Run("metadata failure does not fail the upload", func(t *testing.T) {
		repo := &stubRepo{createErr: errors.New("db locked")}
		svc := newTestService(&stubStorage{}, repo, &stubPreviews{preview: &Preview{}})

		result, err := svc.Upload(&UploadRequest{
			Identity: "10.0.0.1",
			Name:     "data.csv",
			Content:  strings.NewReader("a,b\n"),
		})
		require.NoError(t, err)
		assert.NotNil(t, result.File)
	})
}

package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updrop-io/updrop/internal/files"
)

// errReader fails after yielding a prefix, like a client that drops
// the connection mid-upload.
type errReader struct {
	prefix io.Reader
}

func (r *errReader) Read(p []byte) (int, error) {
	n, err := r.prefix.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errors.New("connection reset by peer")
	}
	return n, err
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStorageSave(t *testing.T) {
	t.Run("stores content under a unique sanitized name", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewStorage(dir, 1024)
		require.NoError(t, err)

		file, err := storage.Save("data.csv", strings.NewReader("a,b\n1,2\n"))
		require.NoError(t, err)

		assert.Equal(t, "data.csv", file.Name)
		assert.Equal(t, ".csv", file.Extension)
		assert.Equal(t, int64(8), file.Size)
		assert.True(t, strings.HasSuffix(file.StorageName, "_data.csv"))

		content, err := os.ReadFile(file.Path)
		require.NoError(t, err)
		assert.Equal(t, "a,b\n1,2\n", string(content))

		// No temp files left behind.
		for _, name := range dirEntries(t, dir) {
			assert.False(t, strings.HasSuffix(name, TempSuffix))
		}
	})

	t.Run("concurrent saves of the same name never collide", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewStorage(dir, 1024)
		require.NoError(t, err)

		first, err := storage.Save("data.csv", strings.NewReader("one"))
		require.NoError(t, err)
		second, err := storage.Save("data.csv", strings.NewReader("two"))
		require.NoError(t, err)

		assert.NotEqual(t, first.StorageName, second.StorageName)
		assert.Len(t, dirEntries(t, dir), 2)
	})

	t.Run("path traversal stays within the data directory", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewStorage(dir, 1024)
		require.NoError(t, err)

		file, err := storage.Save("../../etc/passwd", strings.NewReader("root"))
		require.NoError(t, err)

		assert.Equal(t, "passwd", file.Name)
		rel, err := filepath.Rel(dir, file.Path)
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(rel, ".."))
	})

	t.Run("size limit aborts mid-stream and deletes the temp file", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewStorage(dir, 10)
		require.NoError(t, err)

		_, err = storage.Save("big.csv", strings.NewReader(strings.Repeat("x", 20)))
		assert.ErrorIs(t, err, files.ErrSizeLimitExceeded)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("client disconnect deletes the temp file", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewStorage(dir, 1024)
		require.NoError(t, err)

		_, err = storage.Save("data.csv", &errReader{prefix: strings.NewReader("partial")})
		assert.ErrorIs(t, err, files.ErrClientDisconnected)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("content larger than one chunk", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewStorage(dir, 4*chunkSize)
		require.NoError(t, err)

		payload := strings.Repeat("z", 2*chunkSize+17)
		file, err := storage.Save("big.json", strings.NewReader(payload))
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), file.Size)

		info, err := os.Stat(file.Path)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), info.Size())
	})
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"data.csv", "data.csv"},
		{"../data.csv", "data.csv"},
		{"../../etc/passwd", "passwd"},
		{`..\..\windows\system.json`, "system.json"},
		{"my report (final).xlsx", "my_report_final_.xlsx"},
		{".hidden.csv", "hidden.csv"},
		{"..", "upload"},
		{"", "upload"},
		{"///", "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeName(tt.in))
		})
	}
}

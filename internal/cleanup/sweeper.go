package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/updrop-io/updrop/internal/fs"
)

// Index is the metadata store pruned alongside the storage directory.
type Index interface {
	Delete(storageName string) error
	Prune(olderThan time.Time) error
}

// Sweeper removes stored files older than the retention window. It
// sweeps once when started, periodically while running, and once more
// synchronously when stopped. Failures on individual entries are
// logged and skipped; one bad entry never aborts the rest of a sweep.
type Sweeper struct {
	dir       string
	index     Index
	retention time.Duration
	period    time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSweeper creates a sweeper over dir with the given retention
// window and sweep period.
func NewSweeper(dir string, index Index, retention, period time.Duration) *Sweeper {
	return &Sweeper{
		dir:       dir,
		index:     index,
		retention: retention,
		period:    period,
		done:      make(chan struct{}),
	}
}

// Start runs one synchronous sweep, then sweeps every period until
// Stop is called or ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.Sweep(time.Now())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(time.Now())
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts periodic sweeping and runs a final best-effort sweep.
func (s *Sweeper) Stop() {
	close(s.done)
	s.wg.Wait()
	s.Sweep(time.Now())
}

// Sweep deletes every finalized file in the directory whose age
// exceeds the retention window, then prunes matching metadata rows.
// In-flight temp files are never considered; a writer may be creating
// them concurrently.
func (s *Sweeper) Sweep(now time.Time) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Error("Cleanup sweep failed to read storage directory", "dir", s.dir, "error", err)
		return
	}

	cutoff := now.Add(-s.retention)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), fs.TempSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			slog.Error("Cleanup failed to stat entry", "name", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Error("Cleanup failed to remove file", "path", path, "error", err)
			continue
		}
		if s.index != nil {
			if err := s.index.Delete(entry.Name()); err != nil {
				slog.Error("Cleanup failed to drop metadata row", "storage_name", entry.Name(), "error", err)
			}
		}
		slog.Info("Cleaned up expired file", "path", path, "age", now.Sub(info.ModTime()).Round(time.Second))
	}

	// Rows can outlive their files when a file was removed out of
	// band, so the index is pruned by age as well.
	if s.index != nil {
		if err := s.index.Prune(cutoff); err != nil {
			slog.Error("Cleanup failed to prune metadata", "error", err)
		}
	}
}

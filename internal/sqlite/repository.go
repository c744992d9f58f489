package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/updrop-io/updrop/internal/files"
)

// Repository implements files.FileRepository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// initSchema creates the necessary database tables
func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS files (
		storage_name TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		extension TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);
	`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}

	return nil
}

// Create stores file metadata
func (r *Repository) Create(file *files.File) error {
	query := `
	INSERT INTO files (storage_name, name, extension, size, created_at)
	VALUES (?, ?, ?, ?, ?)
	`

	// Timestamps are normalized to UTC so DATETIME comparisons in
	// List and Prune stay consistent.
	_, err := r.db.Exec(query,
		file.StorageName,
		file.Name,
		file.Extension,
		file.Size,
		file.CreatedAt.UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

// List retrieves metadata for files created at or after since,
// newest first.
func (r *Repository) List(since time.Time) ([]*files.File, error) {
	query := `
	SELECT storage_name, name, extension, size, created_at
	FROM files
	WHERE created_at >= ?
	ORDER BY created_at DESC
	`

	rows, err := r.db.Query(query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	fileList := []*files.File{}
	for rows.Next() {
		var file files.File
		err := rows.Scan(
			&file.StorageName,
			&file.Name,
			&file.Extension,
			&file.Size,
			&file.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		fileList = append(fileList, &file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file rows: %w", err)
	}

	return fileList, nil
}

// Delete removes file metadata by storage name. Deleting a missing
// row is not an error; the sweeper retries entries it already pruned.
func (r *Repository) Delete(storageName string) error {
	query := `DELETE FROM files WHERE storage_name = ?`

	if _, err := r.db.Exec(query, storageName); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	return nil
}

// Prune removes metadata rows older than the given cutoff
func (r *Repository) Prune(olderThan time.Time) error {
	query := `DELETE FROM files WHERE created_at < ?`

	if _, err := r.db.Exec(query, olderThan.UTC()); err != nil {
		return fmt.Errorf("failed to prune file records: %w", err)
	}

	return nil
}

var _ files.FileRepository = (*Repository)(nil)

package preview

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/xuri/excelize/v2"

	"github.com/updrop-io/updrop/internal/files"
)

const (
	// maxRows caps how many rows or lines a preview ever holds.
	maxRows = 5

	// maxLineBytes caps a single preview line so one pathological line
	// cannot pull an arbitrary amount of the file into memory.
	maxLineBytes = 64 * 1024
)

// Generator implements files.PreviewGenerator with an explicit
// extension-to-parser dispatch table. Every parser reads only as much
// of the file as the preview needs, so files far larger than memory
// are fine.
type Generator struct{}

// NewGenerator creates a preview generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a bounded preview of the file at path, dispatching
// on its extension. Parse failures are reported as
// files.ErrUnreadableFormat; they never affect the stored file itself.
func (g *Generator) Generate(path string) (*files.Preview, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return withOpen(path, func(r io.Reader) (*files.Preview, error) {
			return csvPreview(r, "csv")
		})
	case ".json":
		return withOpen(path, func(r io.Reader) (*files.Preview, error) {
			return linePreview(r, "json")
		})
	case ".gz":
		return withOpen(path, func(r io.Reader) (*files.Preview, error) {
			return gzipPreview(r, path)
		})
	case ".xlsx":
		return xlsxPreview(path)
	default:
		return nil, fmt.Errorf("%w: no parser for %q", files.ErrUnreadableFormat, filepath.Ext(path))
	}
}

func withOpen(path string, parse func(io.Reader) (*files.Preview, error)) (*files.Preview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", files.ErrUnreadableFormat, err)
	}
	defer f.Close()
	return parse(f)
}

// csvPreview yields the first maxRows records. One extra read decides
// the truncated flag without materializing a sixth row in the result.
func csvPreview(r io.Reader, format string) (*files.Preview, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	p := &files.Preview{Format: format, Rows: [][]string{}}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", files.ErrUnreadableFormat, err)
		}
		if len(p.Rows) == maxRows {
			p.Truncated = true
			return p, nil
		}
		p.Rows = append(p.Rows, record)
	}
}

// linePreview yields the first maxRows raw lines of text-like content.
func linePreview(r io.Reader, format string) (*files.Preview, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	p := &files.Preview{Format: format, Lines: []string{}}
	for scanner.Scan() {
		if len(p.Lines) == maxRows {
			p.Truncated = true
			return p, nil
		}
		p.Lines = append(p.Lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			// The line continues past what a preview may hold.
			p.Truncated = true
			return p, nil
		}
		return nil, fmt.Errorf("%w: %w", files.ErrUnreadableFormat, err)
	}
	return p, nil
}

// gzipPreview decompresses just enough leading bytes for a line
// preview; a .csv.gz is handed to the csv parser instead, matching how
// the frontend renders it.
func gzipPreview(r io.Reader, path string) (*files.Preview, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", files.ErrUnreadableFormat, err)
	}
	defer zr.Close()

	if strings.HasSuffix(strings.ToLower(path), ".csv.gz") {
		return csvPreview(zr, "csv.gz")
	}
	return linePreview(zr, "gz")
}

// xlsxPreview walks the first sheet with the streaming row iterator,
// so only one row of the workbook is decoded at a time.
func xlsxPreview(path string) (*files.Preview, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", files.ErrUnreadableFormat, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", files.ErrUnreadableFormat)
	}

	rows, err := wb.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", files.ErrUnreadableFormat, err)
	}
	defer rows.Close()

	p := &files.Preview{Format: "xlsx", Rows: [][]string{}}
	for rows.Next() {
		if len(p.Rows) == maxRows {
			p.Truncated = true
			return p, nil
		}
		columns, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", files.ErrUnreadableFormat, err)
		}
		p.Rows = append(p.Rows, columns)
	}
	return p, nil
}

var _ files.PreviewGenerator = (*Generator)(nil)

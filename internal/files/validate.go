package files

import (
	"fmt"
	"path/filepath"
	"strings"
)

// allowedExtensions is the upload allow-list. The check is against the
// filename suffix only; content-type headers are client-controlled and
// not trusted.
var allowedExtensions = map[string]struct{}{
	".csv":  {},
	".xlsx": {},
	".gz":   {},
	".json": {},
}

// Validate checks the declared filename against the extension allow-list.
// It must be called before any byte of the upload body is consumed, so a
// rejection costs no I/O.
func Validate(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
	return nil
}

package files

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrSizeLimitExceeded   = errors.New("size limit exceeded")
	ErrClientDisconnected  = errors.New("client disconnected")
	ErrWriteFailure        = errors.New("write failure")
	ErrUnreadableFormat    = errors.New("unreadable format")
)

// RateLimitError carries the remaining wait time on a rate-limit denial.
// It matches ErrRateLimitExceeded under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

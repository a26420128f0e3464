package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFile is returned when a downloaded file has zero bytes
	ErrEmptyFile = errors.New("downloaded file is empty")

	// ErrFileTooLarge is returned when a downloaded file exceeds the size ceiling
	ErrFileTooLarge = errors.New("downloaded file too large")
)

// DownloadError wraps network, timeout and HTTP status failures while
// fetching a processed file.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

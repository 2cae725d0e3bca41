package loader

import (
	"errors"
	"fmt"
)

// ErrUnsupportedSource is returned for identifiers no configured backend can
// resolve.
var ErrUnsupportedSource = errors.New("loader: unsupported image source")

type FileSizeError struct {
	MaxSizeMB int64
}

func (e *FileSizeError) Error() string {
	return fmt.Sprintf("file size exceeds limit of %d MB", e.MaxSizeMB)
}

// StatusError is a non-200 response from an image host.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object does not exist in a provider.
var ErrNotFound = errors.New("storage: object not found")

type StorageProvider interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

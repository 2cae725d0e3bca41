package storage

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// LocalProvider serves objects from a directory. Keys are slash separated
// and may not escape the directory.
type LocalProvider struct {
	root string
}

var _ StorageProvider = (*LocalProvider)(nil)

func NewLocalProvider(root string) *LocalProvider {
	return &LocalProvider{root: root}
}

func (p *LocalProvider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	name := strings.TrimPrefix(key, "/")
	if name == "" || !fs.ValidPath(name) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	f, err := os.OpenInRoot(p.root, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, info.Size(), nil
}

// AtomicWrite copies r into destPath through a temp file in tempDir,
// optionally compressing with "br" or "gzip".
func AtomicWrite(destPath string, r io.Reader, encodingType string, tempDir string) error {
	tempFile, err := os.CreateTemp(tempDir, "custom404_tmp_*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	defer func() {
		tempFile.Close()
		os.Remove(tempName) // Clean up if rename wasn't reached
	}()

	switch encodingType {
	case "br":
		brWriter := brotli.NewWriterLevel(tempFile, brotli.BestCompression)
		_, err = io.Copy(brWriter, r)
		if cerr := brWriter.Close(); err == nil {
			err = cerr
		}
	case "gzip":
		gzWriter := gzip.NewWriter(tempFile)
		_, err = io.Copy(gzWriter, r)
		if cerr := gzWriter.Close(); err == nil {
			err = cerr
		}
	case "":
		_, err = io.Copy(tempFile, r)
	default:
		return fmt.Errorf("unsupported encoding %q", encodingType)
	}

	if err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if FileExists(destPath) {
		os.Remove(destPath)
	}
	if err := os.Rename(tempName, destPath); err != nil {
		return err
	}
	now := time.Now()
	os.Chtimes(destPath, now, now)

	return nil
}

func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

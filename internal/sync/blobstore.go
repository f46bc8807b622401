// Package sync implements the Sync Engine (Sync, §4.11): encrypted JSON
// envelopes pushed to and pulled from a pluggable blob store, with
// integrity checksums and conflict detection against the Conflict
// Resolver.
package sync

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// BlobStore is the pluggable sync backend contract (§4.11): local
// filesystem, a shared drive, or (future) an object store all implement
// this the same way.
type BlobStore interface {
	Initialize(ctx context.Context) error
	ListFiles(ctx context.Context) ([]string, error)
	ReadFile(ctx context.Context, filename string) (string, bool, error)
	WriteFile(ctx context.Context, filename, content string) error
	DeleteFile(ctx context.Context, filename string) error
	GetLastModified(ctx context.Context, filename string) (time.Time, bool, error)
}

// LocalFileAdapter implements BlobStore against a directory on disk,
// suitable for a git repo or shared drive acting as the sync backend.
type LocalFileAdapter struct {
	syncPath string
}

// NewLocalFileAdapter constructs a LocalFileAdapter rooted at syncPath.
func NewLocalFileAdapter(syncPath string) *LocalFileAdapter {
	return &LocalFileAdapter{syncPath: syncPath}
}

// Initialize creates the sync directory if it doesn't exist.
func (a *LocalFileAdapter) Initialize(ctx context.Context) error {
	return os.MkdirAll(a.syncPath, 0o755)
}

// ListFiles returns the names of all .json envelope files in the sync
// directory.
func (a *LocalFileAdapter) ListFiles(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(a.syncPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ReadFile returns a file's contents, or ok=false if it doesn't exist.
func (a *LocalFileAdapter) ReadFile(ctx context.Context, filename string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(a.syncPath, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// WriteFile creates or overwrites a file, ensuring the directory exists
// first.
func (a *LocalFileAdapter) WriteFile(ctx context.Context, filename, content string) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.syncPath, filename), []byte(content), 0o644)
}

// DeleteFile removes a file if present; deleting an absent file is not an
// error.
func (a *LocalFileAdapter) DeleteFile(ctx context.Context, filename string) error {
	err := os.Remove(filepath.Join(a.syncPath, filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetLastModified returns a file's mtime, or ok=false if it doesn't exist.
func (a *LocalFileAdapter) GetLastModified(ctx context.Context, filename string) (time.Time, bool, error) {
	info, err := os.Stat(filepath.Join(a.syncPath, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return info.ModTime(), true, nil
}

package cas

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/optichain/provenance-backend/interfaces"
)

// FileBackend implements a blob backend using the local file system. Blobs
// are stored one file per content address under a single directory.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base
// directory, creating it if necessary.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	blobDir := filepath.Join(baseDir, "blobs")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch retrieves data from the file system by its content address.
// Returns ErrNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	filePath := b.getFilePath(addr)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, interfaces.ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched blob from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store saves data to the file system and returns its content address.
func (b *FileBackend) Store(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	addr := interfaces.ComputeAddress(data)
	filePath := b.getFilePath(addr)

	if _, err := os.Stat(filePath); err == nil {
		// Content is immutable: the file already holds these exact bytes.
		return addr, nil
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return addr, fmt.Errorf("failed to write file: %w", err)
	}

	b.log.Debug("Stored blob in file",
		slog.String("path", filePath),
		slog.String("address", addr.String()))

	return addr, nil
}

// Delete removes the blob file for the given content address.
func (b *FileBackend) Delete(ctx context.Context, addr interfaces.ContentAddress) error {
	filePath := b.getFilePath(addr)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return interfaces.ErrNotFound
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}

	b.log.Debug("Deleted blob file", slog.String("path", filePath))
	return nil
}

// Available checks if the file backend is accessible by verifying the base
// directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// getFilePath generates a file path for a content address.
func (b *FileBackend) getFilePath(addr interfaces.ContentAddress) string {
	return filepath.Join(b.baseDir, "blobs", addr.String())
}

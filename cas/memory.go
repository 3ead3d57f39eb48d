package cas

import (
	"context"
	"log/slog"
	"sync"

	"github.com/optichain/provenance-backend/interfaces"
)

// MemoryBackend implements an in-process blob backend. It backs tests and
// single-node deployments that do not need durability.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[interfaces.ContentAddress][]byte
	log   *slog.Logger
}

// NewMemoryBackend creates an empty in-memory blob backend.
func NewMemoryBackend(log *slog.Logger) *MemoryBackend {
	return &MemoryBackend{
		blobs: make(map[interfaces.ContentAddress][]byte),
		log:   log,
	}
}

// Fetch retrieves data by its content address.
func (b *MemoryBackend) Fetch(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.blobs[addr]
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	// Copy so callers cannot mutate the stored blob.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Store saves data and returns its content address. Storing identical bytes
// twice is a no-op on the second call.
func (b *MemoryBackend) Store(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	addr := interfaces.ComputeAddress(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.blobs[addr]; !exists {
		stored := make([]byte, len(data))
		copy(stored, data)
		b.blobs[addr] = stored
	}

	return addr, nil
}

// Delete removes data by its content address.
func (b *MemoryBackend) Delete(ctx context.Context, addr interfaces.ContentAddress) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.blobs[addr]; !ok {
		return interfaces.ErrNotFound
	}
	delete(b.blobs, addr)
	return nil
}

// Available always reports true.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return "memory"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MemoryBackend) LocationURI() string {
	return "memory://"
}

// corrupt overwrites the stored bytes for addr without changing the address.
// Test hook for integrity-failure paths.
func (b *MemoryBackend) corrupt(addr interfaces.ContentAddress, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[addr] = data
}

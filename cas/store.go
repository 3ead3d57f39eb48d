package cas

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/optichain/provenance-backend/interfaces"
)

// ReferenceOracle reports whether any entity outside the CAS still holds a
// live weak reference to a blob: an active key record protecting it, or a
// trace event citing it as a certificate. Oracles are registered by the
// wiring layer so the store stays free of upward dependencies.
type ReferenceOracle interface {
	HasLiveReference(ctx context.Context, addr interfaces.ContentAddress) bool
}

// Store is the content-addressed document store. It keeps an index of blob
// metadata and retention state and delegates byte persistence to a
// BlobBackend. Identical content is stored once; every read re-verifies the
// content hash before returning bytes.
type Store struct {
	backend interfaces.BlobBackend
	auth    interfaces.Authorizer
	log     *slog.Logger

	mu      sync.Mutex
	index   map[interfaces.ContentAddress]*blobEntry
	oracles []ReferenceOracle
}

type blobEntry struct {
	meta   interfaces.BlobMetadata
	size   int
	pinned bool
	// refs counts how many times this content was put. Informational only:
	// deletion is governed by the pin flag and the reference oracles.
	refs     int
	storedAt time.Time
}

// NewStore creates a CAS over the given backend. The authorizer guards
// deletion; passing nil disables the authorization check (tests, trusted
// single-tenant deployments).
func NewStore(backend interfaces.BlobBackend, auth interfaces.Authorizer, log *slog.Logger) *Store {
	return &Store{
		backend: backend,
		auth:    auth,
		log:     log,
		index:   make(map[interfaces.ContentAddress]*blobEntry),
	}
}

// AddReferenceOracle registers an oracle consulted before physical deletion.
func (s *Store) AddReferenceOracle(o ReferenceOracle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracles = append(s.oracles, o)
}

// Put stores data and returns its content address. If a blob with the same
// address already exists the bytes are not rewritten: the reference count is
// bumped and the metadata updated (last writer wins on metadata only).
// Concurrent puts of identical bytes converge on the same address.
func (s *Store) Put(ctx context.Context, data []byte, meta interfaces.BlobMetadata) (interfaces.ContentAddress, error) {
	addr := interfaces.ComputeAddress(data)

	s.mu.Lock()
	if entry, exists := s.index[addr]; exists {
		entry.refs++
		entry.meta = meta
		refs := entry.refs
		s.mu.Unlock()
		s.log.Debug("Deduplicated blob",
			slog.String("address", addr.String()),
			slog.Int("references", refs))
		return addr, nil
	}
	s.mu.Unlock()

	// Backend I/O happens outside the index lock. A concurrent put of the
	// same bytes is harmless: the backend write is idempotent per address.
	storedAddr, err := s.backend.Store(ctx, data)
	if err != nil {
		return addr, fmt.Errorf("failed to persist blob: %w", err)
	}
	if !storedAddr.Equal(addr) {
		return addr, fmt.Errorf("%w: backend stored %s for content hashing to %s",
			interfaces.ErrCorrupted, storedAddr, addr)
	}

	s.mu.Lock()
	if entry, exists := s.index[addr]; exists {
		// Lost the race to an identical put; converge on the single entry.
		entry.refs++
		entry.meta = meta
	} else {
		s.index[addr] = &blobEntry{
			meta:     meta,
			size:     len(data),
			refs:     1,
			storedAt: time.Now(),
		}
	}
	s.mu.Unlock()

	s.log.Debug("Stored blob",
		slog.String("address", addr.String()),
		slog.Int("size", len(data)),
		slog.String("filename", meta.Filename))

	return addr, nil
}

// Get retrieves blob bytes by content address. The returned bytes are
// re-hashed on every read: a mismatch against the address surfaces
// ErrCorrupted and the content is never served.
func (s *Store) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	s.mu.Lock()
	_, exists := s.index[addr]
	s.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: blob %s", interfaces.ErrNotFound, addr)
	}

	data, err := s.backend.Fetch(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob %s: %w", addr, err)
	}

	if actual := interfaces.ComputeAddress(data); !actual.Equal(addr) {
		// Security-relevant: stored bytes no longer match their address.
		s.log.Error("Blob integrity check failed",
			slog.String("address", addr.String()),
			slog.String("actual_hash", actual.String()),
			slog.String("backend", s.backend.Name()))
		return nil, fmt.Errorf("%w: blob %s hashes to %s", interfaces.ErrCorrupted, addr, actual)
	}

	return data, nil
}

// Stat returns metadata and retention state for a stored blob.
func (s *Store) Stat(addr interfaces.ContentAddress) (interfaces.BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.index[addr]
	if !exists {
		return interfaces.BlobInfo{}, fmt.Errorf("%w: blob %s", interfaces.ErrNotFound, addr)
	}

	return interfaces.BlobInfo{
		Address:    addr,
		Filename:   entry.meta.Filename,
		MimeType:   entry.meta.MimeType,
		Size:       entry.size,
		Pinned:     entry.pinned,
		References: entry.refs,
		StoredAt:   entry.storedAt,
	}, nil
}

// Pin marks a blob as retained. Pinning is idempotent.
func (s *Store) Pin(addr interfaces.ContentAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.index[addr]
	if !exists {
		return fmt.Errorf("%w: blob %s", interfaces.ErrNotFound, addr)
	}
	entry.pinned = true
	return nil
}

// Unpin clears the retention flag. A blob with no remaining references
// becomes eligible for deletion. Unpinning is idempotent.
func (s *Store) Unpin(addr interfaces.ContentAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.index[addr]
	if !exists {
		return fmt.Errorf("%w: blob %s", interfaces.ErrNotFound, addr)
	}
	entry.pinned = false
	return nil
}

// Delete physically removes a blob. It fails with ErrForbidden when the
// authorization collaborator denies the principal, and with ErrConflict
// while the blob is pinned or any reference oracle reports a live reference.
func (s *Store) Delete(ctx context.Context, addr interfaces.ContentAddress, principal string) error {
	if s.auth != nil && !s.auth.Authorize(ctx, principal, "blob:delete", addr.String()) {
		return fmt.Errorf("%w: principal %q may not delete blob %s", interfaces.ErrForbidden, principal, addr)
	}

	s.mu.Lock()
	entry, exists := s.index[addr]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: blob %s", interfaces.ErrNotFound, addr)
	}
	if entry.pinned {
		s.mu.Unlock()
		return fmt.Errorf("%w: blob %s is pinned", interfaces.ErrConflict, addr)
	}
	oracles := make([]ReferenceOracle, len(s.oracles))
	copy(oracles, s.oracles)
	s.mu.Unlock()

	// Oracle checks may do I/O; never hold the index lock across them.
	for _, o := range oracles {
		if o.HasLiveReference(ctx, addr) {
			return fmt.Errorf("%w: blob %s has live references", interfaces.ErrConflict, addr)
		}
	}

	if err := s.backend.Delete(ctx, addr); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", addr, err)
	}

	s.mu.Lock()
	delete(s.index, addr)
	s.mu.Unlock()

	s.log.Info("Deleted blob",
		slog.String("address", addr.String()),
		slog.String("principal", principal))

	return nil
}

package cas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/optichain/provenance-backend/interfaces"
)

// MultiBackend implements interfaces.BlobBackend over multiple backends with
// fallback. Reads return from the first backend that has the content; writes
// go to every available backend for redundancy.
type MultiBackend struct {
	backends []interfaces.BlobBackend
	log      *slog.Logger
}

// NewMultiBackend creates a new multi-storage backend with fallback.
func NewMultiBackend(backends []interfaces.BlobBackend, logger *slog.Logger) *MultiBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch returns the content from the first available backend that has it.
// ErrNotFound is returned only when every available backend reported the
// content missing.
func (m *MultiBackend) Fetch(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	start := time.Now()
	var errs []error
	allMissing := true

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("address", addr.String()))
			allMissing = false
			continue
		}

		data, err := backend.Fetch(ctx, addr)
		if err == nil {
			m.log.Debug("Fetched blob",
				slog.String("backend_name", backend.Name()),
				slog.String("address", addr.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if !errors.Is(err, interfaces.ErrNotFound) {
			allMissing = false
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("address", addr.String()),
			"err", err)
	}

	if allMissing && len(errs) > 0 {
		return nil, interfaces.ErrNotFound
	}

	m.log.Error("All backends failed to fetch blob",
		slog.String("address", addr.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to fetch %s: %v", addr, errs)
}

// Store saves data to all available backends. It succeeds if at least one
// backend accepted the write.
func (m *MultiBackend) Store(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	start := time.Now()
	var result interfaces.ContentAddress
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		addr, err := backend.Store(ctx, data)
		if err == nil {
			if !success {
				result = addr
				success = true
				m.log.Debug("Stored blob",
					slog.String("backend_name", backend.Name()),
					slog.String("address", addr.String()),
					slog.Duration("duration", time.Since(start)))
			} else if !result.Equal(addr) {
				// Should not happen: same bytes must hash to the same address.
				m.log.Warn("Inconsistent addresses from backends",
					slog.String("backend_name", backend.Name()),
					slog.String("expected", result.String()),
					slog.String("actual", addr.String()))
			}
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
		}
	}

	if !success {
		m.log.Error("All backends failed to store blob",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return result, fmt.Errorf("all backends failed to store data: %v", errs)
	}

	return result, nil
}

// Delete removes the content from every available backend. Backends that do
// not have the content are skipped; the delete fails only if a backend that
// holds the content could not remove it.
func (m *MultiBackend) Delete(ctx context.Context, addr interfaces.ContentAddress) error {
	var deleted bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}

		err := backend.Delete(ctx, addr)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, interfaces.ErrNotFound):
			// Nothing to remove on this backend.
		default:
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to delete %s from all backends: %v", addr, errs)
	}
	if !deleted {
		return interfaces.ErrNotFound
	}
	return nil
}

// Available checks if any backend is available.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the combined URI of all aggregated backends.
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}

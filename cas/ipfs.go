package cas

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/optichain/provenance-backend/interfaces"
)

// IPFSBackend implements a blob backend using the InterPlanetary File System.
//
// IPFS addresses content by CID rather than by plain SHA-256, so the backend
// keeps a process-local address-to-CID map populated on Store. Content stored
// by another process is not reachable through this backend until re-stored.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string

	mu   sync.RWMutex
	cids map[interfaces.ContentAddress]string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the
// specified host and port.
func NewIPFSBackend(host, port, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
		cids:        make(map[interfaces.ContentAddress]string),
	}, nil
}

// Fetch retrieves data from IPFS by its content address. Returns ErrNotFound
// if the address was not stored through this backend, or ErrBackendUnavailable
// if the IPFS node is not accessible.
func (b *IPFSBackend) Fetch(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	start := time.Now()

	b.mu.RLock()
	cid, ok := b.cids[addr]
	b.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.Cat(cid)
	if err != nil {
		b.log.Error("Failed to fetch data from IPFS",
			slog.String("cid", cid),
			slog.String("address", addr.String()),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched blob from IPFS",
		slog.String("cid", cid),
		slog.String("address", addr.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store adds data to IPFS and returns its content address.
// Returns ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Store(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	addr := interfaces.ComputeAddress(data)

	if !b.shell.IsUp() {
		return addr, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data))
	if err != nil {
		return addr, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	b.mu.Lock()
	b.cids[addr] = cid
	b.mu.Unlock()

	b.log.Debug("Stored blob in IPFS",
		slog.String("ipfsCID", cid),
		slog.String("address", addr.String()))

	return addr, nil
}

// Delete unpins the content from the IPFS node. The node's garbage collector
// reclaims the bytes; IPFS has no synchronous physical delete.
func (b *IPFSBackend) Delete(ctx context.Context, addr interfaces.ContentAddress) error {
	b.mu.Lock()
	cid, ok := b.cids[addr]
	if ok {
		delete(b.cids, addr)
	}
	b.mu.Unlock()

	if !ok {
		return interfaces.ErrNotFound
	}

	if err := b.shell.Unpin(cid); err != nil {
		return fmt.Errorf("failed to unpin from IPFS: %w", err)
	}

	b.log.Debug("Unpinned blob from IPFS",
		slog.String("ipfsCID", cid),
		slog.String("address", addr.String()))

	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

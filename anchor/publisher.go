package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optichain/provenance-backend/interfaces"
)

// digestDomain separates anchor preimages from other SHA-256 uses and
// versions the layout.
const digestDomain = "optichain/anchor/v1"

// maxRetryAttempts caps pending-digest resubmissions per retry cycle.
const maxRetryAttempts = 5

// retryBaseDelay is the first backoff step between resubmission attempts.
const retryBaseDelay = 500 * time.Millisecond

// ChainSource provides the terminal hashes to checkpoint. Satisfied by
// trace.Manager.
type ChainSource interface {
	TerminalHashes(ctx context.Context) (map[string]interfaces.EventHash, error)
}

// Publisher computes anchor digests and submits them to the external ledger.
type Publisher struct {
	chains ChainSource
	ledger interfaces.Ledger
	log    *slog.Logger

	mu      sync.Mutex
	digests map[string]interfaces.AnchorDigest
}

// NewPublisher creates an anchor publisher.
func NewPublisher(chains ChainSource, ledger interfaces.Ledger, log *slog.Logger) *Publisher {
	return &Publisher{
		chains:  chains,
		ledger:  ledger,
		log:     log,
		digests: make(map[string]interfaces.AnchorDigest),
	}
}

// ComputeDigest derives the anchor digest for a terminal-hash snapshot.
// Products are folded in lexicographic order so the digest is independent of
// map iteration:
//
//	domain || be64(asOf unix) || for each product: lp(productID) || hash[32]
//
// where lp is a big-endian uint32 length prefix.
func ComputeDigest(asOf time.Time, terminal map[string]interfaces.EventHash) [32]byte {
	products := make([]string, 0, len(terminal))
	for productID := range terminal {
		products = append(products, productID)
	}
	sort.Strings(products)

	h := sha256.New()
	h.Write([]byte(digestDomain))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(asOf.Unix()))
	h.Write(ts[:])

	var lp [4]byte
	for _, productID := range products {
		binary.BigEndian.PutUint32(lp[:], uint32(len(productID)))
		h.Write(lp[:])
		h.Write([]byte(productID))
		hash := terminal[productID]
		h.Write(hash.Bytes())
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// Publish snapshots all chains, records the digest as Pending, and submits
// it to the ledger. The digest is returned even when submission fails: it
// stays Pending locally and later retries pick it up. Submission failure is
// reported as ErrLedgerUnavailable.
func (p *Publisher) Publish(ctx context.Context, asOf time.Time) (*interfaces.AnchorDigest, error) {
	terminal, err := p.chains.TerminalHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot chains: %w", err)
	}

	digest := interfaces.AnchorDigest{
		ID:        uuid.New().String(),
		AsOf:      asOf,
		Digest:    ComputeDigest(asOf, terminal),
		Terminal:  terminal,
		Status:    interfaces.AnchorPending,
		CreatedAt: time.Now(),
	}

	// Recorded before the ledger sees it, so a crash mid-submit leaves a
	// retryable Pending digest instead of nothing.
	p.mu.Lock()
	p.digests[digest.ID] = digest
	p.mu.Unlock()

	p.log.Info("Computed anchor digest",
		slog.String("anchor_id", digest.ID),
		slog.Int("products", len(terminal)),
		slog.Time("as_of", asOf))

	if err := p.submit(ctx, digest.ID); err != nil {
		result := p.snapshot(digest.ID)
		return &result, err
	}

	result := p.snapshot(digest.ID)
	return &result, nil
}

// submit pushes one pending digest to the ledger and records the
// confirmation on success.
func (p *Publisher) submit(ctx context.Context, id string) error {
	p.mu.Lock()
	digest, exists := p.digests[id]
	p.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: anchor %s", interfaces.ErrNotFound, id)
	}
	if digest.Status == interfaces.AnchorConfirmed {
		return nil
	}

	ref, err := p.ledger.Submit(ctx, digest.Digest[:])
	if err != nil {
		p.log.Warn("Ledger rejected anchor digest",
			slog.String("anchor_id", id),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	p.mu.Lock()
	digest = p.digests[id]
	digest.Status = interfaces.AnchorConfirmed
	digest.ConfirmationRef = ref
	digest.ConfirmedAt = time.Now()
	p.digests[id] = digest
	p.mu.Unlock()

	p.log.Info("Anchor digest confirmed",
		slog.String("anchor_id", id),
		slog.String("confirmation_ref", ref))
	return nil
}

func (p *Publisher) snapshot(id string) interfaces.AnchorDigest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.digests[id]
}

// DigestByID returns a recorded anchor digest.
func (p *Publisher) DigestByID(id string) (interfaces.AnchorDigest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	digest, exists := p.digests[id]
	if !exists {
		return interfaces.AnchorDigest{}, fmt.Errorf("%w: anchor %s", interfaces.ErrNotFound, id)
	}
	return digest, nil
}

// PendingDigests lists digests the ledger has not yet acknowledged, oldest
// first.
func (p *Publisher) PendingDigests() []interfaces.AnchorDigest {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pending []interfaces.AnchorDigest
	for _, digest := range p.digests {
		if digest.Status == interfaces.AnchorPending {
			pending = append(pending, digest)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending
}

// RetryPending resubmits pending digests with exponential backoff, capped at
// maxRetryAttempts per digest. It returns the number of digests confirmed.
func (p *Publisher) RetryPending(ctx context.Context) int {
	confirmed := 0
	for _, digest := range p.PendingDigests() {
		delay := retryBaseDelay
		for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
			if err := p.submit(ctx, digest.ID); err == nil {
				confirmed++
				break
			}
			if attempt == maxRetryAttempts {
				p.log.Warn("Anchor digest still unconfirmed",
					slog.String("anchor_id", digest.ID),
					slog.Int("attempts", attempt))
				break
			}
			select {
			case <-ctx.Done():
				return confirmed
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return confirmed
}

// Run periodically retries pending digests and publishes a fresh anchor
// until the context is cancelled. Ledger failures are logged and retried on
// the next tick, never fatal.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	p.log.Info("Anchor publisher started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Anchor publisher stopped")
			return
		case <-ticker.C:
			p.RetryPending(ctx)
			if _, err := p.Publish(ctx, time.Now()); err != nil {
				p.log.Warn("Periodic anchor publish failed", "err", err)
			}
		}
	}
}

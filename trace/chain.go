package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/optichain/provenance-backend/interfaces"
)

// appendRetries bounds how often an append is rebuilt after losing a
// conditional-append race to a concurrent writer on the same product.
const appendRetries = 3

// StagePolicy selects how stage-order regressions are handled.
type StagePolicy int

const (
	// StagePolicyReject fails a backwards stage move with
	// ErrInvalidTransition unless the event is a correction.
	StagePolicyReject StagePolicy = iota

	// StagePolicyWarnOnly logs the regression and accepts the event.
	StagePolicyWarnOnly
)

// AppendRequest describes one custody event to append.
type AppendRequest struct {
	ProductID  string
	Stage      interfaces.TraceStage
	Issuer     string
	IssuerName string

	// Timestamp defaults to the current time when zero.
	Timestamp time.Time

	Certificate *interfaces.ContentAddress
	Environment *interfaces.EnvironmentReading

	// Correction permits a backwards stage move as a compensating event.
	Correction bool

	Extensions map[string]string
}

// ChainVerification is the result of recomputing a product's chain.
type ChainVerification struct {
	ProductID string                  `json:"product_id"`
	Valid     bool                    `json:"valid"`
	Events    []interfaces.TraceEvent `json:"events"`

	// BrokenAtIndex is the index of the first event whose hash or link does
	// not recompute, or -1 when the chain is valid.
	BrokenAtIndex int `json:"broken_at_index"`
}

// Manager owns the custody chains. It serializes appends per product,
// enforces the stage-order policy, and links every new event to the current
// terminal hash.
type Manager struct {
	store   EventStore
	catalog interfaces.Catalog
	policy  StagePolicy
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a chain manager. The catalog collaborator gates appends
// on product existence; passing nil skips the check.
func NewManager(store EventStore, catalog interfaces.Catalog, policy StagePolicy, log *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		catalog: catalog,
		policy:  policy,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) productLock(productID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, exists := m.locks[productID]
	if !exists {
		lock = &sync.Mutex{}
		m.locks[productID] = lock
	}
	return lock
}

// AppendEvent validates, links, and persists one custody event. Appends to
// the same product are serialized; concurrent appends both succeed, ordered
// one after the other, and never fork the chain.
func (m *Manager) AppendEvent(ctx context.Context, req AppendRequest) (*interfaces.TraceEvent, error) {
	if req.ProductID == "" {
		return nil, fmt.Errorf("product id is required")
	}
	if !req.Stage.Valid() {
		return nil, fmt.Errorf("unknown trace stage: %q", req.Stage)
	}
	if req.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	if m.catalog != nil {
		exists, err := m.catalog.ProductExists(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("catalog lookup for %s failed: %w", req.ProductID, err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: product %s not in catalog", interfaces.ErrNotFound, req.ProductID)
		}
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	lock := m.productLock(req.ProductID)
	lock.Lock()
	defer lock.Unlock()

	// The conditional append can still lose to an out-of-band writer on a
	// shared store, so the link is rebuilt on conflict.
	var lastErr error
	for attempt := 0; attempt <= appendRetries; attempt++ {
		chain, err := m.store.Events(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load chain for %s: %w", req.ProductID, err)
		}

		previousHash := interfaces.EventHash{}
		if len(chain) > 0 {
			terminal := chain[len(chain)-1]
			previousHash = terminal.DocumentHash

			if err := m.checkStageOrder(terminal, req); err != nil {
				return nil, err
			}
		}

		event := interfaces.TraceEvent{
			ProductID:    req.ProductID,
			Sequence:     uint64(len(chain)),
			Stage:        req.Stage,
			Issuer:       req.Issuer,
			IssuerName:   req.IssuerName,
			Timestamp:    timestamp,
			Certificate:  req.Certificate,
			Environment:  req.Environment,
			Correction:   req.Correction,
			Extensions:   req.Extensions,
			PreviousHash: previousHash,
			CreatedAt:    time.Now(),
		}
		event.DocumentHash = ComputeEventHash(event)

		err = m.store.Append(ctx, event, event.Sequence)
		if err == nil {
			m.log.Info("Appended custody event",
				slog.String("product_id", req.ProductID),
				slog.Uint64("sequence", event.Sequence),
				slog.String("stage", string(req.Stage)),
				slog.String("issuer", req.Issuer),
				slog.String("document_hash", event.DocumentHash.String()))
			return &event, nil
		}
		if !errors.Is(err, interfaces.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("append for %s kept losing to concurrent writers: %w", req.ProductID, lastErr)
}

func (m *Manager) checkStageOrder(terminal interfaces.TraceEvent, req AppendRequest) error {
	if req.Stage.Ordinal() >= terminal.Stage.Ordinal() {
		return nil
	}
	if req.Correction {
		return nil
	}

	if m.policy == StagePolicyWarnOnly {
		m.log.Warn("Stage regression accepted under warn-only policy",
			slog.String("product_id", req.ProductID),
			slog.String("from_stage", string(terminal.Stage)),
			slog.String("to_stage", string(req.Stage)))
		return nil
	}

	return fmt.Errorf("%w: stage %s after %s for product %s",
		interfaces.ErrInvalidTransition, req.Stage, terminal.Stage, req.ProductID)
}

// Events returns a product's chain in append order.
func (m *Manager) Events(ctx context.Context, productID string) ([]interfaces.TraceEvent, error) {
	return m.store.Events(ctx, productID)
}

// TerminalHash returns the hash of a product's latest event. An empty chain
// fails with ErrNotFound.
func (m *Manager) TerminalHash(ctx context.Context, productID string) (interfaces.EventHash, error) {
	chain, err := m.store.Events(ctx, productID)
	if err != nil {
		return interfaces.EventHash{}, err
	}
	if len(chain) == 0 {
		return interfaces.EventHash{}, fmt.Errorf("%w: product %s has no events", interfaces.ErrNotFound, productID)
	}
	return chain[len(chain)-1].DocumentHash, nil
}

// TerminalHashes snapshots the terminal hash of every non-empty chain.
func (m *Manager) TerminalHashes(ctx context.Context) (map[string]interfaces.EventHash, error) {
	products, err := m.store.Products(ctx)
	if err != nil {
		return nil, err
	}

	terminal := make(map[string]interfaces.EventHash, len(products))
	for _, productID := range products {
		chain, err := m.store.Events(ctx, productID)
		if err != nil {
			return nil, err
		}
		if len(chain) == 0 {
			continue
		}
		terminal[productID] = chain[len(chain)-1].DocumentHash
	}
	return terminal, nil
}

// VerifyChain recomputes every event hash and link in a product's chain. An
// empty chain is trivially valid. The first event that fails to recompute is
// reported through BrokenAtIndex; events after the break are returned but
// not trusted.
func (m *Manager) VerifyChain(ctx context.Context, productID string) (ChainVerification, error) {
	chain, err := m.store.Events(ctx, productID)
	if err != nil {
		return ChainVerification{}, err
	}

	result := ChainVerification{
		ProductID:     productID,
		Valid:         true,
		Events:        chain,
		BrokenAtIndex: -1,
	}

	expectedPrevious := interfaces.EventHash{}
	for i, event := range chain {
		if !event.PreviousHash.Equal(expectedPrevious) || !ComputeEventHash(event).Equal(event.DocumentHash) {
			result.Valid = false
			result.BrokenAtIndex = i
			m.log.Error("Custody chain failed verification",
				slog.String("product_id", productID),
				slog.Int("broken_at_index", i))
			break
		}
		expectedPrevious = event.DocumentHash
	}

	return result, nil
}

// HasLiveReference reports whether any custody event cites the given blob as
// a certificate. Chains are append-only, so a cited certificate stays
// referenced forever. Backs the CAS deletion guard.
func (m *Manager) HasLiveReference(ctx context.Context, addr interfaces.ContentAddress) bool {
	products, err := m.store.Products(ctx)
	if err != nil {
		m.log.Error("Failed to list products for reference check", "err", err)
		// Fail closed: an unknown reference state must block deletion.
		return true
	}

	for _, productID := range products {
		chain, err := m.store.Events(ctx, productID)
		if err != nil {
			m.log.Error("Failed to load chain for reference check",
				slog.String("product_id", productID), "err", err)
			return true
		}
		for _, event := range chain {
			if event.Certificate != nil && event.Certificate.Equal(addr) {
				return true
			}
		}
	}
	return false
}

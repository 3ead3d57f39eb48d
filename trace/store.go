package trace

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/optichain/provenance-backend/interfaces"
)

// EventStore persists custody events. Append is conditional: it succeeds
// only when the product chain still has exactly expectedSeq events, which
// lets the chain manager detect a concurrent writer and rebuild the link
// instead of forking the chain.
type EventStore interface {
	// Append adds one event to the product's chain iff the chain currently
	// holds expectedSeq events. A length mismatch fails with ErrConflict.
	Append(ctx context.Context, event interfaces.TraceEvent, expectedSeq uint64) error

	// Events returns a product's chain in append order. An unknown product
	// returns an empty chain, not an error.
	Events(ctx context.Context, productID string) ([]interfaces.TraceEvent, error)

	// Products lists every product id that has at least one event.
	Products(ctx context.Context) ([]string, error)
}

// MemoryEventStore is an in-process EventStore for tests and single-node
// deployments.
type MemoryEventStore struct {
	mu     sync.RWMutex
	chains map[string][]interfaces.TraceEvent
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{chains: make(map[string][]interfaces.TraceEvent)}
}

// Append implements the conditional append contract.
func (s *MemoryEventStore) Append(ctx context.Context, event interfaces.TraceEvent, expectedSeq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[event.ProductID]
	if uint64(len(chain)) != expectedSeq {
		return fmt.Errorf("%w: product %s has %d events, expected %d",
			interfaces.ErrConflict, event.ProductID, len(chain), expectedSeq)
	}

	s.chains[event.ProductID] = append(chain, event)
	return nil
}

// Events returns a copy of the product's chain in append order.
func (s *MemoryEventStore) Events(ctx context.Context, productID string) ([]interfaces.TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[productID]
	out := make([]interfaces.TraceEvent, len(chain))
	copy(out, chain)
	return out, nil
}

// Products lists product ids with at least one event, sorted for stable
// iteration.
func (s *MemoryEventStore) Products(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

package keyvault

import (
	"fmt"
	"sync"

	"github.com/optichain/provenance-backend/interfaces"
)

// RecordStore persists key records. Implementations must treat records as
// immutable values: Put replaces the whole record, Get returns a copy.
type RecordStore interface {
	Put(record interfaces.KeyRecord) error
	Get(id string) (interfaces.KeyRecord, error)
	List() ([]interfaces.KeyRecord, error)
}

// MemoryStore is an in-process RecordStore for tests and single-node
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]interfaces.KeyRecord
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]interfaces.KeyRecord)}
}

// Put stores or replaces a key record.
func (s *MemoryStore) Put(record interfaces.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(id string) (interfaces.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return interfaces.KeyRecord{}, fmt.Errorf("%w: key %s", interfaces.ErrNotFound, id)
	}
	return record, nil
}

// List returns all stored records in unspecified order.
func (s *MemoryStore) List() ([]interfaces.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]interfaces.KeyRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

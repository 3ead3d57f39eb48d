// Package interfaces defines the core types and contracts for the provenance
// backend. It provides the boundary between components without implementation
// details.
//
// The package contains:
//
//   - ContentAddress: 32-byte SHA-256 identifier for blob content
//   - EventHash: 32-byte hash linking custody events into a chain
//   - TraceStage: the ordered custody stage vocabulary
//   - Entity types: TraceEvent, BlobMetadata, BlobInfo, KeyRecord, AnchorDigest
//   - Collaborator contracts: Catalog, Authorizer, Ledger
//   - BlobBackend: pluggable content-addressed blob persistence
//   - The shared error taxonomy (ErrNotFound, ErrConflict, ErrCorrupted, ...)
//
// Every hash in the system is computed with SHA-256 so that addresses and
// chain links are reproducible across restarts and across reimplementations.
package interfaces

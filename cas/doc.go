// Package cas implements the content-addressed document store with pluggable
// blob backends.
//
// The Store layers deduplication, pinning, reference accounting and
// read-time integrity verification on top of a BlobBackend, which only
// persists bytes keyed by their SHA-256 content address:
//
//   - Memory backend for tests and single-process deployments
//   - File system backend for local deployments
//   - S3-compatible object storage for cloud deployments
//   - IPFS for decentralized content
//   - HashiCorp Vault KV for sensitive documents
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Examples:
//
//   - memory://
//   - file:///var/lib/provenance/blobs/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - vault://vault.example.com:8200/secret/provenance?token=...
//
// Multiple URIs can be combined into a redundant multi-backend that stores to
// every available backend and fetches from the first one that has the content.
//
// # Integrity
//
// Every read recomputes the SHA-256 hash of the returned bytes and compares
// it to the requested address. A mismatch surfaces interfaces.ErrCorrupted
// and is never served; blobs are immutable once their address exists.
//
// # Deletion
//
// Deleting a blob requires that it is not pinned, that no registered
// reference oracle (active key records, trace event certificates) reports a
// live reference, and that the authorization collaborator permits the
// principal to delete blobs.
package cas

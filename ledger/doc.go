// Package ledger provides the external ledger collaborator used by the
// anchor publisher. The production implementation writes anchor digests as
// transaction calldata on an Ethereum-compatible chain; MockLedger backs
// tests and offline deployments.
package ledger

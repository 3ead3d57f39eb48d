// Package trace maintains append-only, hash-linked custody chains, one per
// product.
//
// Every event's DocumentHash is a pure function of the event's identifying
// fields and the previous event's hash, so any mutation or reordering of
// history is detectable by recomputing the chain. Advisory fields
// (environment readings, extensions, issuer display name) are excluded from
// the hash and may be enriched without breaking verification.
//
// Appends are serialized per product. The stage vocabulary is totally
// ordered and regressions are rejected unless the event is flagged as a
// correction, which records a compensating event rather than rewriting
// history.
package trace

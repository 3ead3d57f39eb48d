// Package anchor periodically checkpoints the custody chains to an external
// ledger.
//
// A digest summarizes the terminal hash of every product chain as of a point
// in time into one 32-byte value. Digests are recorded locally as Pending
// before any ledger interaction and move to Confirmed only when the ledger
// returns an acknowledgement reference; a reference is never fabricated. A
// ledger outage delays anchoring but never blocks chain appends.
package anchor

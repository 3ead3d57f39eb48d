// Package keyvault manages the symmetric keys that protect encrypted
// documents in the content-addressed store.
//
// The vault never persists a raw key in recoverable plaintext. Each issued
// key is stored two ways:
//   - a SHA-256 fingerprint, used to verify possession without exposure
//   - the key sealed with AES-256-GCM under a wrap key derived from the
//     vault's master secret with Argon2id
//
// When the issuing request carries an escrow public key, the raw key is
// additionally sealed to that key with ECIES so the escrow holder can
// recover it without the vault's master secret.
//
// Keys are revoked, never deleted: a revoked record stays readable for audit
// but refuses unwrap and verification with ErrKeyInactive. RotateMaster
// re-wraps every stored key under a new master secret without changing any
// fingerprint.
package keyvault

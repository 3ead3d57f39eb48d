// Package cryptoutils provides the cryptographic primitives used across the
// provenance backend: ECIES public-key encryption for key escrow, Argon2id
// key derivation for the vault's wrap key, and AES-GCM authenticated
// encryption for wrapping per-document keys.
//
// # Key Functions
//
// # EncryptWithPublicKey - Encrypts data using a public key in PEM format
//
// # DecryptWithPrivateKey - Decrypts data using a private key in PEM format
//
// # DeriveWrapKey - Derives a 32-byte wrap key from a master secret
//
// # SealWithKey / OpenWithKey - AES-GCM wrapping of small payloads
//
// ECIES output format: [ephemeral key length (2 bytes)][ephemeral key][iv][ciphertext].
// SealWithKey output format: [nonce (12 bytes)][ciphertext].
package cryptoutils

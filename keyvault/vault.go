package keyvault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optichain/provenance-backend/cryptoutils"
	"github.com/optichain/provenance-backend/interfaces"
)

// wrapSalt fixes the Argon2id salt so the wrap key is recomputable from the
// master secret alone.
const wrapSalt = "optichain/keyvault/wrap/v1"

// Vault issues, verifies, revokes, and unwraps per-document symmetric keys.
// All key material at rest is wrapped under a key derived from the master
// secret; the raw key leaves the vault only at issue time and through an
// authorized Unwrap.
type Vault struct {
	store RecordStore
	auth  interfaces.Authorizer
	log   *slog.Logger

	mu      sync.Mutex
	wrapKey []byte
}

// IssueKeyRequest describes one key issuance.
type IssueKeyRequest struct {
	// Principal is the owner of the issued key. Required.
	Principal string

	// Filename and MimeType describe the document the key protects.
	Filename string
	MimeType string

	// Document binds the key to a stored blob, if already known.
	Document *interfaces.ContentAddress

	Metadata map[string]string

	// EscrowPublicKey, when set, is a PEM-encoded ECDSA public key the raw
	// key is additionally sealed to for out-of-band recovery.
	EscrowPublicKey []byte
}

// NewVault creates a key vault over the given record store. The authorizer
// guards Unwrap; passing nil disables the check.
func NewVault(store RecordStore, auth interfaces.Authorizer, masterSecret []byte, log *slog.Logger) *Vault {
	return &Vault{
		store:   store,
		auth:    auth,
		log:     log,
		wrapKey: cryptoutils.DeriveWrapKey(masterSecret, []byte(wrapSalt)),
	}
}

// IssueKey generates a fresh 32-byte key, records its fingerprint and
// wrapped form, and returns the record together with the raw key. The raw
// key is returned exactly once; the vault cannot reproduce it without an
// authorized Unwrap.
func (v *Vault) IssueKey(ctx context.Context, req IssueKeyRequest) (interfaces.KeyRecord, []byte, error) {
	if req.Principal == "" {
		return interfaces.KeyRecord{}, nil, fmt.Errorf("principal is required")
	}

	rawKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, rawKey); err != nil {
		return interfaces.KeyRecord{}, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	v.mu.Lock()
	wrapped, err := cryptoutils.SealWithKey(v.wrapKey, rawKey)
	v.mu.Unlock()
	if err != nil {
		return interfaces.KeyRecord{}, nil, fmt.Errorf("failed to wrap key: %w", err)
	}

	var escrowed []byte
	if len(req.EscrowPublicKey) > 0 {
		escrowed, err = cryptoutils.EncryptWithPublicKey(req.EscrowPublicKey, rawKey)
		if err != nil {
			return interfaces.KeyRecord{}, nil, fmt.Errorf("failed to escrow key: %w", err)
		}
	}

	now := time.Now()
	record := interfaces.KeyRecord{
		ID:          uuid.New().String(),
		Principal:   req.Principal,
		Fingerprint: sha256.Sum256(rawKey),
		WrappedKey:  wrapped,
		EscrowedKey: escrowed,
		Document:    req.Document,
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		Active:      true,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := v.store.Put(record); err != nil {
		return interfaces.KeyRecord{}, nil, fmt.Errorf("failed to persist key record: %w", err)
	}

	v.log.Info("Issued document key",
		slog.String("key_id", record.ID),
		slog.String("principal", req.Principal),
		slog.Bool("escrowed", escrowed != nil))

	return record, rawKey, nil
}

// Record returns the stored record for a key id.
func (v *Vault) Record(id string) (interfaces.KeyRecord, error) {
	return v.store.Get(id)
}

// VerifyKey reports whether candidate is the key identified by id. The
// comparison runs in constant time over fingerprints so neither the raw key
// nor its prefix leaks through timing. A revoked key fails with
// ErrKeyInactive regardless of the candidate.
func (v *Vault) VerifyKey(id string, candidate []byte) (bool, error) {
	record, err := v.store.Get(id)
	if err != nil {
		return false, err
	}
	if !record.Active {
		return false, fmt.Errorf("%w: key %s", interfaces.ErrKeyInactive, id)
	}

	candidateFP := sha256.Sum256(candidate)
	return subtle.ConstantTimeCompare(candidateFP[:], record.Fingerprint[:]) == 1, nil
}

// Unwrap returns the raw key for an authorized principal. It fails with
// ErrForbidden when the authorizer denies the principal and with
// ErrKeyInactive for revoked keys.
func (v *Vault) Unwrap(ctx context.Context, id, principal string) ([]byte, error) {
	record, err := v.store.Get(id)
	if err != nil {
		return nil, err
	}

	if v.auth != nil && !v.auth.Authorize(ctx, principal, "key:unwrap", id) {
		v.log.Warn("Denied key unwrap",
			slog.String("key_id", id),
			slog.String("principal", principal))
		return nil, fmt.Errorf("%w: principal %q may not unwrap key %s", interfaces.ErrForbidden, principal, id)
	}

	if !record.Active {
		return nil, fmt.Errorf("%w: key %s", interfaces.ErrKeyInactive, id)
	}

	v.mu.Lock()
	rawKey, err := cryptoutils.OpenWithKey(v.wrapKey, record.WrappedKey)
	v.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key %s: %w", id, err)
	}

	return rawKey, nil
}

// Revoke deactivates a key. Revocation is permanent: a second revoke fails
// with ErrKeyInactive, and the record stays readable for audit.
func (v *Vault) Revoke(ctx context.Context, id string) error {
	record, err := v.store.Get(id)
	if err != nil {
		return err
	}
	if !record.Active {
		return fmt.Errorf("%w: key %s already revoked", interfaces.ErrKeyInactive, id)
	}

	record.Active = false
	record.UpdatedAt = time.Now()
	if err := v.store.Put(record); err != nil {
		return fmt.Errorf("failed to persist revocation: %w", err)
	}

	v.log.Info("Revoked document key", slog.String("key_id", id))
	return nil
}

// RotateMaster re-wraps every stored key under a wrap key derived from the
// new master secret. Fingerprints, escrow blobs, and activation state are
// untouched; only the wrapped form changes. The rotation is all-or-nothing
// per record but not transactional across records: a failure leaves already
// rotated records on the new secret, so the caller must retry with the same
// new secret.
func (v *Vault) RotateMaster(newMasterSecret []byte) error {
	newWrapKey := cryptoutils.DeriveWrapKey(newMasterSecret, []byte(wrapSalt))

	v.mu.Lock()
	defer v.mu.Unlock()

	records, err := v.store.List()
	if err != nil {
		return fmt.Errorf("failed to list key records: %w", err)
	}

	rotated := 0
	for _, record := range records {
		rawKey, err := cryptoutils.OpenWithKey(v.wrapKey, record.WrappedKey)
		if err != nil {
			// Already on the new secret from an interrupted earlier rotation.
			if _, retryErr := cryptoutils.OpenWithKey(newWrapKey, record.WrappedKey); retryErr == nil {
				continue
			}
			return fmt.Errorf("failed to unwrap key %s during rotation: %w", record.ID, err)
		}

		rewrapped, err := cryptoutils.SealWithKey(newWrapKey, rawKey)
		if err != nil {
			return fmt.Errorf("failed to rewrap key %s: %w", record.ID, err)
		}

		record.WrappedKey = rewrapped
		record.UpdatedAt = time.Now()
		if err := v.store.Put(record); err != nil {
			return fmt.Errorf("failed to persist rotated key %s: %w", record.ID, err)
		}
		rotated++
	}

	v.wrapKey = newWrapKey
	v.log.Info("Rotated vault master secret", slog.Int("keys_rotated", rotated))
	return nil
}

// HasLiveReference reports whether any active key record is bound to the
// given blob. It backs the CAS deletion guard.
func (v *Vault) HasLiveReference(ctx context.Context, addr interfaces.ContentAddress) bool {
	records, err := v.store.List()
	if err != nil {
		v.log.Error("Failed to list key records for reference check", "err", err)
		// Fail closed: an unknown reference state must block deletion.
		return true
	}

	for _, record := range records {
		if record.Active && record.Document != nil && record.Document.Equal(addr) {
			return true
		}
	}
	return false
}

package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/optichain/provenance-backend/anchor"
	"github.com/optichain/provenance-backend/cas"
	"github.com/optichain/provenance-backend/interfaces"
	"github.com/optichain/provenance-backend/keyvault"
	"github.com/optichain/provenance-backend/trace"
)

// DocumentVerification reports the outcome of checking one stored document.
type DocumentVerification struct {
	Address interfaces.ContentAddress `json:"address"`

	// IntegrityOK is true when the stored bytes still hash to the address.
	IntegrityOK bool `json:"integrity_ok"`

	// KeyChecked is true when a key verification was requested and the key
	// record was found.
	KeyChecked bool `json:"key_checked"`

	// KeyMatch is true when the presented candidate key matches the record's
	// fingerprint. Meaningful only when KeyChecked is set.
	KeyMatch bool `json:"key_match"`

	// Detail carries a human-readable explanation for negative outcomes.
	Detail string `json:"detail,omitempty"`
}

// AnchorVerification reports whether a product chain still agrees with an
// anchored checkpoint.
type AnchorVerification struct {
	ProductID string `json:"product_id"`
	AnchorID  string `json:"anchor_id"`
	Valid     bool   `json:"valid"`
	Detail    string `json:"detail,omitempty"`
}

// Verifier performs read-only audits over the store, vault, chains, and
// anchors.
type Verifier struct {
	store   *cas.Store
	vault   *keyvault.Vault
	chains  *trace.Manager
	anchors *anchor.Publisher
	log     *slog.Logger
}

// New creates a verifier over the given components.
func New(store *cas.Store, vault *keyvault.Vault, chains *trace.Manager, anchors *anchor.Publisher, log *slog.Logger) *Verifier {
	return &Verifier{
		store:   store,
		vault:   vault,
		chains:  chains,
		anchors: anchors,
		log:     log,
	}
}

// VerifyDocument rereads a document from the CAS to check its integrity and,
// when keyID is non-empty, checks the presented candidate key against the
// key record's fingerprint. An inactive key fails the check regardless of
// the candidate.
func (v *Verifier) VerifyDocument(ctx context.Context, addr interfaces.ContentAddress, keyID string, candidateKey []byte) (DocumentVerification, error) {
	result := DocumentVerification{Address: addr}

	_, err := v.store.Get(ctx, addr)
	switch {
	case err == nil:
		result.IntegrityOK = true
	case errors.Is(err, interfaces.ErrCorrupted):
		result.Detail = "stored bytes no longer match the content address"
		return result, nil
	case errors.Is(err, interfaces.ErrNotFound):
		return result, err
	default:
		return result, fmt.Errorf("failed to reread document %s: %w", addr, err)
	}

	if keyID == "" {
		return result, nil
	}

	match, err := v.vault.VerifyKey(keyID, candidateKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyInactive) {
			result.KeyChecked = true
			result.Detail = "key has been revoked"
			return result, nil
		}
		return result, err
	}

	result.KeyChecked = true
	result.KeyMatch = match
	if !match {
		result.Detail = "presented key does not match the record fingerprint"
	}
	return result, nil
}

// VerifyAgainstAnchor checks a product's custody history against an anchored
// checkpoint. It recomputes the anchor digest from its recorded snapshot,
// locates the product's anchored terminal hash in the current chain, and
// recomputes every link up to that point. The chain may have grown since the
// anchor; it must not have diverged.
func (v *Verifier) VerifyAgainstAnchor(ctx context.Context, productID, anchorID string) (AnchorVerification, error) {
	result := AnchorVerification{ProductID: productID, AnchorID: anchorID}

	digest, err := v.anchors.DigestByID(anchorID)
	if err != nil {
		return result, err
	}

	// The digest must still be recomputable from its own snapshot.
	if anchor.ComputeDigest(digest.AsOf, digest.Terminal) != digest.Digest {
		result.Detail = "anchor digest does not recompute from its snapshot"
		v.log.Error("Anchor digest failed recomputation", slog.String("anchor_id", anchorID))
		return result, nil
	}

	anchoredHash, anchored := digest.Terminal[productID]
	if !anchored {
		result.Detail = "product was not part of this anchor"
		return result, nil
	}

	verification, err := v.chains.VerifyChain(ctx, productID)
	if err != nil {
		return result, err
	}

	anchoredIndex := -1
	for i, event := range verification.Events {
		if event.DocumentHash.Equal(anchoredHash) {
			anchoredIndex = i
			break
		}
	}
	if anchoredIndex == -1 {
		result.Detail = "anchored terminal hash is no longer part of the chain"
		return result, nil
	}

	// The prefix up to the anchored event must recompute cleanly; breaks
	// past the anchor point do not falsify the anchored history.
	if !verification.Valid && verification.BrokenAtIndex <= anchoredIndex {
		result.Detail = fmt.Sprintf("chain fails verification at index %d", verification.BrokenAtIndex)
		return result, nil
	}

	result.Valid = true
	return result, nil
}

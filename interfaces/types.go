package interfaces

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ContentAddress is a 32-byte SHA-256 hash uniquely identifying blob content.
// Identical bytes always produce the same address, so the address doubles as a
// deduplication key and a tamper-evidence proof: any byte change changes the
// address and breaks every dependent link.
type ContentAddress [32]byte

// NewContentAddressFromBytes creates a content address from a raw 32-byte slice.
func NewContentAddressFromBytes(source []byte) (ContentAddress, error) {
	if len(source) != 32 {
		return ContentAddress{}, errors.New("invalid ContentAddress conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return ContentAddress(hash), nil
}

// NewContentAddressFromHex creates a content address from its hex representation.
func NewContentAddressFromHex(source string) (ContentAddress, error) {
	// Remove 0x prefix if present
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentAddress{}, errors.New("invalid content address length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentAddress{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ContentAddress(hash), nil
}

// ComputeAddress calculates the content address of data.
//
// SHA-256 is mandated so that addresses are stable across process restarts and
// across language reimplementations.
func ComputeAddress(data []byte) ContentAddress {
	hash := sha256.Sum256(data)
	return ContentAddress(hash)
}

// String returns hex representation.
func (a ContentAddress) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns raw 32-byte hash.
func (a ContentAddress) Bytes() []byte {
	return a[:]
}

// Equal compares two content addresses.
func (a ContentAddress) Equal(other ContentAddress) bool {
	return bytes.Equal(a[:], other[:])
}

// IsZero reports whether the address is the all-zero value.
func (a ContentAddress) IsZero() bool {
	return a == ContentAddress{}
}

// MarshalJSON encodes the address as a hex string.
func (a ContentAddress) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes the address from a hex string.
func (a *ContentAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewContentAddressFromHex(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EventHash is a 32-byte SHA-256 digest over the canonical payload of a trace
// event. The zero value is the sentinel previous-hash of the first event in a
// product's chain.
type EventHash [32]byte

// NewEventHashFromHex creates an event hash from its hex representation.
func NewEventHashFromHex(source string) (EventHash, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return EventHash{}, errors.New("invalid event hash length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return EventHash{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return EventHash(hash), nil
}

// String returns hex representation.
func (h EventHash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw 32-byte hash.
func (h EventHash) Bytes() []byte {
	return h[:]
}

// Equal compares two event hashes.
func (h EventHash) Equal(other EventHash) bool {
	return h == other
}

// IsZero reports whether the hash is the chain-start sentinel.
func (h EventHash) IsZero() bool {
	return h == EventHash{}
}

// MarshalJSON encodes the hash as a hex string.
func (h EventHash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON decodes the hash from a hex string.
func (h *EventHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewEventHashFromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

package interfaces

import (
	"fmt"
	"time"
)

// TraceStage is one step of the custody stage vocabulary. Stages are totally
// ordered; an append that moves backwards through the vocabulary is rejected
// unless flagged as a correction.
type TraceStage string

const (
	StageRawMaterial    TraceStage = "raw_material"
	StageManufacturing  TraceStage = "manufacturing"
	StageQualityControl TraceStage = "quality_control"
	StagePackaging      TraceStage = "packaging"
	StageDistribution   TraceStage = "distribution"
	StageRetail         TraceStage = "retail"
	StageDelivery       TraceStage = "delivery"
)

var stageOrder = map[TraceStage]int{
	StageRawMaterial:    0,
	StageManufacturing:  1,
	StageQualityControl: 2,
	StagePackaging:      3,
	StageDistribution:   4,
	StageRetail:         5,
	StageDelivery:       6,
}

// ParseTraceStage validates a stage string against the vocabulary.
func ParseTraceStage(s string) (TraceStage, error) {
	stage := TraceStage(s)
	if _, ok := stageOrder[stage]; !ok {
		return "", fmt.Errorf("unknown trace stage: %q", s)
	}
	return stage, nil
}

// Ordinal returns the stage's position in the declared sequence.
func (s TraceStage) Ordinal() int {
	ord, ok := stageOrder[s]
	if !ok {
		return -1
	}
	return ord
}

// Valid reports whether the stage belongs to the vocabulary.
func (s TraceStage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// EnvironmentReading holds optional environmental observations attached to a
// custody event. Readings are advisory and excluded from the event hash.
type EnvironmentReading struct {
	Location    string   `json:"location,omitempty"`
	Coordinates string   `json:"coordinates,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

// TraceEvent is one custody step for exactly one product. Events form an
// append-only, hash-linked chain per product: DocumentHash is a pure function
// of (product id, stage, issuer, timestamp, certificate address,
// PreviousHash), and PreviousHash is the DocumentHash of the prior event (or
// the zero sentinel for the first event).
type TraceEvent struct {
	ProductID  string     `json:"product_id"`
	Sequence   uint64     `json:"sequence"`
	Stage      TraceStage `json:"stage"`
	Issuer     string     `json:"issuer"`
	IssuerName string     `json:"issuer_name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`

	// Certificate is the content address of a supporting document in the CAS,
	// if any. It is a weak reference: the event does not own the blob.
	Certificate *ContentAddress `json:"certificate,omitempty"`

	Environment *EnvironmentReading `json:"environment,omitempty"`

	// Correction marks a compensating event that is allowed to move backwards
	// through the stage vocabulary.
	Correction bool `json:"correction,omitempty"`

	// Extensions carries free-form annotations. Excluded from the hash.
	Extensions map[string]string `json:"extensions,omitempty"`

	PreviousHash EventHash `json:"previous_hash"`
	DocumentHash EventHash `json:"document_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// BlobMetadata is the caller-declared description of stored content.
type BlobMetadata struct {
	Filename string            `json:"filename,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// BlobInfo describes a stored blob: its metadata plus retention state.
type BlobInfo struct {
	Address    ContentAddress `json:"address"`
	Filename   string         `json:"filename,omitempty"`
	MimeType   string         `json:"mime_type,omitempty"`
	Size       int            `json:"size"`
	Pinned     bool           `json:"pinned"`
	// References counts how many times the content was put. Informational:
	// retention is decided by the pin flag and external reference checks.
	References int       `json:"references"`
	StoredAt   time.Time `json:"stored_at"`
}

// KeyRecord represents one symmetric key issued for one document. The raw key
// is never stored in recoverable plaintext: Fingerprint is a one-way SHA-256
// hash of the key and WrappedKey is the key encrypted under the vault master
// secret. Records are deactivated, never deleted, to preserve audit history.
type KeyRecord struct {
	ID        string `json:"id"`
	Principal string `json:"principal"`

	// Fingerprint is SHA-256 of the raw key, used to verify possession
	// without exposing the key.
	Fingerprint [32]byte `json:"fingerprint"`

	// WrappedKey is the raw key sealed with AES-256-GCM under a wrap key
	// derived from the vault master secret.
	WrappedKey []byte `json:"-"`

	// EscrowedKey optionally holds the raw key sealed to the owning
	// principal's public key (ECIES), recoverable without the vault.
	EscrowedKey []byte `json:"-"`

	// Document is the content address the key protects, if bound.
	Document *ContentAddress `json:"document,omitempty"`

	Filename string            `json:"filename,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Active   bool              `json:"active"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnchorStatus is the publication state of an anchor digest.
type AnchorStatus string

const (
	// AnchorPending marks a digest computed locally but not yet acknowledged
	// by the external ledger.
	AnchorPending AnchorStatus = "pending"

	// AnchorConfirmed marks a digest the ledger has acknowledged with a
	// confirmation reference.
	AnchorConfirmed AnchorStatus = "confirmed"
)

// AnchorDigest is a periodic checkpoint: one hash summarizing the terminal
// hashes of all product chains as of a point in time. A digest is either
// Pending or Confirmed, never partially written, and is immutable once
// confirmed.
type AnchorDigest struct {
	ID     string    `json:"id"`
	AsOf   time.Time `json:"as_of"`
	Digest [32]byte  `json:"digest"`

	// Terminal snapshots each product's terminal event hash at AsOf. The
	// digest is recomputable from this map alone.
	Terminal map[string]EventHash `json:"terminal"`

	Status AnchorStatus `json:"status"`

	// ConfirmationRef is the external ledger's acknowledgement reference.
	// Never fabricated: empty until the ledger responds.
	ConfirmationRef string `json:"confirmation_ref,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	ConfirmedAt time.Time `json:"confirmed_at,omitzero"`
}

package interfaces

import "errors"

var (
	// ErrNotFound is returned when a product, blob, key record or anchor
	// digest does not exist. Recoverable, surfaced to the caller.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for ordering violations and reference
	// conflicts: a concurrent append race, or deleting a blob that still has
	// live references. Recoverable via retry or explicit override.
	ErrConflict = errors.New("conflict")

	// ErrCorrupted is returned when stored bytes no longer hash to their
	// content address. Never recovered automatically; every read path fails
	// closed and the event is logged for investigation.
	ErrCorrupted = errors.New("content corrupted")

	// ErrForbidden is returned when the authorization collaborator denies an
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrKeyInactive is returned when a key record has been revoked.
	ErrKeyInactive = errors.New("key record inactive")

	// ErrInvalidTransition is returned when an appended stage moves backwards
	// through the stage vocabulary without a correction flag.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrLedgerUnavailable is returned when the external ledger cannot be
	// reached. Anchor publication retries with backoff; the error is never
	// fatal to the local chain.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrBackendUnavailable is returned when a blob storage backend is not
	// accessible: network issues, authentication failures, or outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

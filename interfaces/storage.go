package interfaces

import (
	"context"
	"fmt"
	"net/url"
)

// BackendLocation represents a URI for a blob storage backend.
type BackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewBackendLocation creates a storage location from a URI string with
// validation. Supported schemes: memory, file, ipfs, s3, vault.
func NewBackendLocation(uri string) (BackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return BackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "memory", "file", "ipfs", "s3", "vault":
		// Valid scheme
	default:
		return BackendLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return BackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc BackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc BackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc BackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// BlobBackend persists opaque blobs keyed by their content address. Backends
// hold bytes only; deduplication, pinning and reference accounting live in the
// CAS layer above.
type BlobBackend interface {
	// Fetch retrieves data by content address.
	Fetch(ctx context.Context, addr ContentAddress) ([]byte, error)

	// Store saves data and returns its content address.
	Store(ctx context.Context, data []byte) (ContentAddress, error)

	// Delete physically removes data. Returns ErrNotFound when absent.
	Delete(ctx context.Context, addr ContentAddress) error

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// BackendFactory creates blob backends from location URIs.
type BackendFactory interface {
	// BackendFor creates a backend from a URI.
	// Supports memory://, file://, ipfs://, s3://, vault://
	BackendFor(location BackendLocation) (BlobBackend, error)

	// CreateMultiBackend creates an aggregated backend with fallback reads
	// and redundant writes.
	CreateMultiBackend(locations []BackendLocation) (BlobBackend, error)
}

package cas

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/optichain/provenance-backend/interfaces"
)

// Factory creates blob backends from URI strings and manages multi-backend
// configurations for redundant storage.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new factory instance that can create blob backends.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{log: logger}
}

// BackendFor creates a blob backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - In-process storage for tests and single-node use
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS distributed storage
//   - vault:// - HashiCorp Vault KV v2 storage
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) BackendFor(location interfaces.BackendLocation) (interfaces.BlobBackend, error) {
	u, err := url.Parse(location.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryBackend(f.log), nil
	case "file":
		return f.createFileBackend(u)
	case "ipfs":
		return f.createIPFSBackend(u)
	case "s3":
		return f.createS3Backend(u)
	case "vault":
		return f.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("unsupported backend scheme: %s", u.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location
// URIs. The multi-backend aggregates all valid backends, storing content to
// every available one and fetching from the first that has it. Returns an
// error if no valid backends could be created.
func (f *Factory) CreateMultiBackend(locations []interfaces.BackendLocation) (interfaces.BlobBackend, error) {
	backends := make([]interfaces.BlobBackend, 0, len(locations))

	for _, loc := range locations {
		backend, err := f.BackendFor(loc)
		if err != nil {
			f.log.Warn("Failed to create blob backend",
				"err", err,
				slog.String("locationURI", loc.Raw))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid blob backends created")
	}

	return NewMultiBackend(backends, f.log), nil
}

// createFileBackend creates a file system blob backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (f *Factory) createFileBackend(u *url.URL) (interfaces.BlobBackend, error) {
	f.log.Debug("Creating file backend", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", u.String())
	}

	return NewFileBackend(path, f.log)
}

// createIPFSBackend creates an IPFS blob backend.
// URI format: ipfs://host:port/?timeout=30s
func (f *Factory) createIPFSBackend(u *url.URL) (interfaces.BlobBackend, error) {
	f.log.Debug("Creating IPFS backend", slog.String("uri", u.String()))

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	timeout := u.Query().Get("timeout")
	if timeout == "" {
		timeout = "30s"
	}

	return NewIPFSBackend(host, port, timeout, f.log)
}

// createS3Backend creates an S3 or S3-compatible blob backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (f *Factory) createS3Backend(u *url.URL) (interfaces.BlobBackend, error) {
	f.log.Debug("Creating S3 backend", slog.String("uri", u.String()))

	bucketName := u.Host
	path := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	} else {
		f.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	return NewS3Backend(bucketName, path, region, endpoint, accessKey, secretKey, f.log)
}

// createVaultBackend creates a HashiCorp Vault blob backend.
// URI format: vault://vault.example.com:8200/mount/path?token=...&scheme=https
func (f *Factory) createVaultBackend(u *url.URL) (interfaces.BlobBackend, error) {
	f.log.Debug("Creating Vault backend", slog.String("uri", u.String()))

	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid Vault URI, expected vault://host:port/mount/path")
	}
	mountPath, dataPath := parts[0], parts[1]

	scheme := u.Query().Get("scheme")
	if scheme == "" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	token := u.Query().Get("token")
	if token == "" {
		f.log.Warn("No Vault token provided, relying on VAULT_TOKEN environment")
	}

	return NewVaultBackend(address, token, mountPath, dataPath, f.log)
}

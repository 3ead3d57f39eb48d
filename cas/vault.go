package cas

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/optichain/provenance-backend/interfaces"
)

// VaultBackend implements a blob backend using HashiCorp Vault's KV v2
// secrets engine. It suits small sensitive documents such as encrypted exam
// reports; large binary content belongs on S3 or IPFS.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend authenticated with the
// provided token.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token with read/write access to the mount
//   - mountPath: Vault KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "provenance")
//   - log: Structured logger for operational insights
func NewVaultBackend(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.TrimPrefix(dataPath, "/")
	dataPath = strings.TrimSuffix(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Fetch retrieves data from Vault by its content address.
func (b *VaultBackend) Fetch(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	start := time.Now()
	path := b.getSecretPath(addr)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			slog.String("address", addr.String()),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Blob not found in Vault",
			slog.String("path", path),
			slog.String("address", addr.String()))
		return nil, interfaces.ErrNotFound
	}

	// KV v2 wraps the payload in a "data" map
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}

	encoded, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Vault content: %w", err)
	}

	b.log.Debug("Fetched blob from Vault",
		slog.String("address", addr.String()),
		slog.Duration("duration", time.Since(start)))

	return content, nil
}

// Store saves data to Vault and returns its content address. Bytes are
// base64-encoded so arbitrary binary survives the KV JSON round trip.
func (b *VaultBackend) Store(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	start := time.Now()
	addr := interfaces.ComputeAddress(data)
	path := b.getSecretPath(addr)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}

	_, err := b.client.Logical().WriteWithContext(ctx, path, secretData)
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			slog.String("address", addr.String()),
			"err", err)
		return addr, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored blob in Vault",
		slog.String("address", addr.String()),
		slog.Duration("duration", time.Since(start)))

	return addr, nil
}

// Delete removes data from Vault by its content address.
func (b *VaultBackend) Delete(ctx context.Context, addr interfaces.ContentAddress) error {
	path := b.getSecretPath(addr)

	_, err := b.client.Logical().DeleteWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Deleted blob from Vault", slog.String("address", addr.String()))
	return nil
}

// Available checks if the Vault backend is accessible. It uses the health
// endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

// getSecretPath generates the KV v2 path for a content address.
func (b *VaultBackend) getSecretPath(addr interfaces.ContentAddress) string {
	return fmt.Sprintf("%s/data/%s/blobs/%s", b.mountPath, b.dataPath, addr.String())
}

package keyvault

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optichain/provenance-backend/cryptoutils"
	"github.com/optichain/provenance-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allowAll(ctx context.Context, principal, action, resourceID string) bool { return true }

func TestIssueKey(t *testing.T) {
	vault := NewVault(NewMemoryStore(), interfaces.AuthorizerFunc(allowAll), []byte("master"), testLogger())

	record, rawKey, err := vault.IssueKey(context.Background(), IssueKeyRequest{
		Principal: "lab-zeiss",
		Filename:  "lens-report.pdf",
		MimeType:  "application/pdf",
	})
	require.NoError(t, err)
	require.Len(t, rawKey, 32)
	assert.True(t, record.Active)
	assert.Equal(t, "lab-zeiss", record.Principal)

	// Fingerprint is a one-way hash of the raw key.
	assert.Equal(t, sha256.Sum256(rawKey), record.Fingerprint)

	// The stored wrapped form never equals the raw key.
	assert.NotEqual(t, rawKey, record.WrappedKey)

	// No escrow requested, none produced.
	assert.Nil(t, record.EscrowedKey)
}

func TestIssueKeyRequiresPrincipal(t *testing.T) {
	vault := NewVault(NewMemoryStore(), nil, []byte("master"), testLogger())

	_, _, err := vault.IssueKey(context.Background(), IssueKeyRequest{})
	require.Error(t, err)
}

func TestVerifyKey(t *testing.T) {
	vault := NewVault(NewMemoryStore(), nil, []byte("master"), testLogger())

	record, rawKey, err := vault.IssueKey(context.Background(), IssueKeyRequest{Principal: "lab"})
	require.NoError(t, err)

	match, err := vault.VerifyKey(record.ID, rawKey)
	require.NoError(t, err)
	assert.True(t, match)

	wrong := make([]byte, 32)
	match, err = vault.VerifyKey(record.ID, wrong)
	require.NoError(t, err)
	assert.False(t, match)

	_, err = vault.VerifyKey("no-such-key", rawKey)
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestUnwrapRoundTrip(t *testing.T) {
	vault := NewVault(NewMemoryStore(), interfaces.AuthorizerFunc(allowAll), []byte("master"), testLogger())

	record, rawKey, err := vault.IssueKey(context.Background(), IssueKeyRequest{Principal: "lab"})
	require.NoError(t, err)

	unwrapped, err := vault.Unwrap(context.Background(), record.ID, "lab")
	require.NoError(t, err)
	assert.Equal(t, rawKey, unwrapped)
}

func TestUnwrapForbidden(t *testing.T) {
	denyAll := interfaces.AuthorizerFunc(func(ctx context.Context, principal, action, resourceID string) bool {
		return false
	})
	vault := NewVault(NewMemoryStore(), denyAll, []byte("master"), testLogger())

	record, _, err := vault.IssueKey(context.Background(), IssueKeyRequest{Principal: "lab"})
	require.NoError(t, err)

	_, err = vault.Unwrap(context.Background(), record.ID, "intruder")
	require.ErrorIs(t, err, interfaces.ErrForbidden)
}

func TestRevoke(t *testing.T) {
	vault := NewVault(NewMemoryStore(), interfaces.AuthorizerFunc(allowAll), []byte("master"), testLogger())

	record, rawKey, err := vault.IssueKey(context.Background(), IssueKeyRequest{Principal: "lab"})
	require.NoError(t, err)

	require.NoError(t, vault.Revoke(context.Background(), record.ID))

	// Revoked keys refuse verification and unwrap.
	_, err = vault.VerifyKey(record.ID, rawKey)
	require.ErrorIs(t, err, interfaces.ErrKeyInactive)

	_, err = vault.Unwrap(context.Background(), record.ID, "lab")
	require.ErrorIs(t, err, interfaces.ErrKeyInactive)

	// Second revoke fails; the record stays readable for audit.
	err = vault.Revoke(context.Background(), record.ID)
	require.ErrorIs(t, err, interfaces.ErrKeyInactive)

	stored, err := vault.Record(record.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, record.Fingerprint, stored.Fingerprint)
}

func TestEscrowRecovery(t *testing.T) {
	privPEM, pubPEM, err := cryptoutils.GenerateEscrowKeypair()
	require.NoError(t, err)

	vault := NewVault(NewMemoryStore(), nil, []byte("master"), testLogger())

	record, rawKey, err := vault.IssueKey(context.Background(), IssueKeyRequest{
		Principal:       "lab",
		EscrowPublicKey: pubPEM,
	})
	require.NoError(t, err)
	require.NotNil(t, record.EscrowedKey)

	// The escrow holder recovers the raw key without the vault.
	recovered, err := cryptoutils.DecryptWithPrivateKey(privPEM, record.EscrowedKey)
	require.NoError(t, err)
	assert.Equal(t, rawKey, recovered)
}

func TestRotateMaster(t *testing.T) {
	vault := NewVault(NewMemoryStore(), interfaces.AuthorizerFunc(allowAll), []byte("old-master"), testLogger())

	record1, rawKey1, err := vault.IssueKey(context.Background(), IssueKeyRequest{Principal: "lab"})
	require.NoError(t, err)
	record2, rawKey2, err := vault.IssueKey(context.Background(), IssueKeyRequest{Principal: "factory"})
	require.NoError(t, err)

	require.NoError(t, vault.RotateMaster([]byte("new-master")))

	// Keys unwrap to the same raw material under the new secret.
	unwrapped1, err := vault.Unwrap(context.Background(), record1.ID, "lab")
	require.NoError(t, err)
	assert.Equal(t, rawKey1, unwrapped1)

	unwrapped2, err := vault.Unwrap(context.Background(), record2.ID, "factory")
	require.NoError(t, err)
	assert.Equal(t, rawKey2, unwrapped2)

	// Fingerprints are untouched by rotation.
	stored, err := vault.Record(record1.ID)
	require.NoError(t, err)
	assert.Equal(t, record1.Fingerprint, stored.Fingerprint)

	// Rotating again with the same secret is a no-op that succeeds.
	require.NoError(t, vault.RotateMaster([]byte("new-master")))
}

func TestHasLiveReference(t *testing.T) {
	vault := NewVault(NewMemoryStore(), interfaces.AuthorizerFunc(allowAll), []byte("master"), testLogger())

	addr := interfaces.ComputeAddress([]byte("encrypted report"))
	record, _, err := vault.IssueKey(context.Background(), IssueKeyRequest{
		Principal: "lab",
		Document:  &addr,
	})
	require.NoError(t, err)

	assert.True(t, vault.HasLiveReference(context.Background(), addr))

	other := interfaces.ComputeAddress([]byte("unrelated"))
	assert.False(t, vault.HasLiveReference(context.Background(), other))

	// A revoked key no longer pins the blob.
	require.NoError(t, vault.Revoke(context.Background(), record.ID))
	assert.False(t, vault.HasLiveReference(context.Background(), addr))
}

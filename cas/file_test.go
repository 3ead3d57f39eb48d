package cas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optichain/provenance-backend/interfaces"
)

func TestFileBackendRoundTrip(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("persisted to disk")
	addr, err := backend.Store(ctx, data)
	require.NoError(t, err)

	fetched, err := backend.Fetch(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	// Re-storing identical bytes is a no-op.
	again, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	require.NoError(t, backend.Delete(ctx, addr))
	_, err = backend.Fetch(ctx, addr)
	require.ErrorIs(t, err, interfaces.ErrNotFound)
	require.ErrorIs(t, backend.Delete(ctx, addr), interfaces.ErrNotFound)
}

func TestFactoryBackendFor(t *testing.T) {
	factory := NewFactory(testLogger())

	memLoc, err := interfaces.NewBackendLocation("memory://")
	require.NoError(t, err)
	backend, err := factory.BackendFor(memLoc)
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Name())

	fileLoc, err := interfaces.NewBackendLocation("file://" + t.TempDir())
	require.NoError(t, err)
	backend, err = factory.BackendFor(fileLoc)
	require.NoError(t, err)
	assert.True(t, backend.Available(context.Background()))

	_, err = interfaces.NewBackendLocation("carrier-pigeon://coop")
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryCreateMultiBackend(t *testing.T) {
	factory := NewFactory(testLogger())

	mem, err := interfaces.NewBackendLocation("memory://")
	require.NoError(t, err)
	fileLoc, err := interfaces.NewBackendLocation("file://" + t.TempDir())
	require.NoError(t, err)

	backend, err := factory.CreateMultiBackend([]interfaces.BackendLocation{mem, fileLoc})
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("stored redundantly")
	addr, err := backend.Store(ctx, data)
	require.NoError(t, err)

	fetched, err := backend.Fetch(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	_, err = factory.CreateMultiBackend(nil)
	require.Error(t, err)
}

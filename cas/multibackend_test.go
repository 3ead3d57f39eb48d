package cas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/optichain/provenance-backend/interfaces"
)

// MockBackend mocks the interfaces.BlobBackend interface.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Fetch(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBackend) Store(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(interfaces.ContentAddress), args.Error(1)
}

func (m *MockBackend) Delete(ctx context.Context, addr interfaces.ContentAddress) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *MockBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBackend) LocationURI() string {
	args := m.Called()
	return args.String(0)
}

func TestMultiBackendFetchFallback(t *testing.T) {
	ctx := context.Background()
	data := []byte("replicated blob")
	addr := interfaces.ComputeAddress(data)

	down := new(MockBackend)
	down.On("Available", mock.Anything).Return(false)
	down.On("Name").Return("down-backend")

	healthy := new(MockBackend)
	healthy.On("Available", mock.Anything).Return(true)
	healthy.On("Name").Return("healthy-backend")
	healthy.On("Fetch", mock.Anything, addr).Return(data, nil)

	multi := NewMultiBackend([]interfaces.BlobBackend{down, healthy}, testLogger())

	fetched, err := multi.Fetch(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
	down.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestMultiBackendFetchAllMissing(t *testing.T) {
	addr := interfaces.ComputeAddress([]byte("nowhere"))

	b1 := new(MockBackend)
	b1.On("Available", mock.Anything).Return(true)
	b1.On("Name").Return("b1")
	b1.On("Fetch", mock.Anything, addr).Return(nil, interfaces.ErrNotFound)

	b2 := new(MockBackend)
	b2.On("Available", mock.Anything).Return(true)
	b2.On("Name").Return("b2")
	b2.On("Fetch", mock.Anything, addr).Return(nil, interfaces.ErrNotFound)

	multi := NewMultiBackend([]interfaces.BlobBackend{b1, b2}, testLogger())

	// Every backend reported missing, so the aggregate is a clean not-found.
	_, err := multi.Fetch(context.Background(), addr)
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMultiBackendFetchMixedFailure(t *testing.T) {
	addr := interfaces.ComputeAddress([]byte("somewhere"))

	missing := new(MockBackend)
	missing.On("Available", mock.Anything).Return(true)
	missing.On("Name").Return("missing")
	missing.On("Fetch", mock.Anything, addr).Return(nil, interfaces.ErrNotFound)

	broken := new(MockBackend)
	broken.On("Available", mock.Anything).Return(true)
	broken.On("Name").Return("broken")
	broken.On("Fetch", mock.Anything, addr).Return(nil, errors.New("io failure"))

	multi := NewMultiBackend([]interfaces.BlobBackend{missing, broken}, testLogger())

	// A real failure means the content may still exist: not a clean not-found.
	_, err := multi.Fetch(context.Background(), addr)
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMultiBackendStoreRedundant(t *testing.T) {
	data := []byte("stored everywhere")
	addr := interfaces.ComputeAddress(data)

	b1 := new(MockBackend)
	b1.On("Available", mock.Anything).Return(true)
	b1.On("Name").Return("b1")
	b1.On("Store", mock.Anything, data).Return(addr, nil)

	b2 := new(MockBackend)
	b2.On("Available", mock.Anything).Return(true)
	b2.On("Name").Return("b2")
	b2.On("Store", mock.Anything, data).Return(addr, nil)

	multi := NewMultiBackend([]interfaces.BlobBackend{b1, b2}, testLogger())

	stored, err := multi.Store(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, addr, stored)
	b1.AssertCalled(t, "Store", mock.Anything, data)
	b2.AssertCalled(t, "Store", mock.Anything, data)
}

func TestMultiBackendStorePartialFailure(t *testing.T) {
	data := []byte("partially stored")
	addr := interfaces.ComputeAddress(data)

	failing := new(MockBackend)
	failing.On("Available", mock.Anything).Return(true)
	failing.On("Name").Return("failing")
	failing.On("Store", mock.Anything, data).Return(interfaces.ContentAddress{}, errors.New("disk full"))

	working := new(MockBackend)
	working.On("Available", mock.Anything).Return(true)
	working.On("Name").Return("working")
	working.On("Store", mock.Anything, data).Return(addr, nil)

	multi := NewMultiBackend([]interfaces.BlobBackend{failing, working}, testLogger())

	// One accepting backend is enough.
	stored, err := multi.Store(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, addr, stored)
}

func TestMultiBackendStoreAllFail(t *testing.T) {
	data := []byte("unstorable")

	b := new(MockBackend)
	b.On("Available", mock.Anything).Return(false)
	b.On("Name").Return("offline")

	multi := NewMultiBackend([]interfaces.BlobBackend{b}, testLogger())

	_, err := multi.Store(context.Background(), data)
	require.Error(t, err)
}

func TestMultiBackendDelete(t *testing.T) {
	addr := interfaces.ComputeAddress([]byte("to delete"))

	holds := new(MockBackend)
	holds.On("Available", mock.Anything).Return(true)
	holds.On("Name").Return("holds")
	holds.On("Delete", mock.Anything, addr).Return(nil)

	lacks := new(MockBackend)
	lacks.On("Available", mock.Anything).Return(true)
	lacks.On("Name").Return("lacks")
	lacks.On("Delete", mock.Anything, addr).Return(interfaces.ErrNotFound)

	multi := NewMultiBackend([]interfaces.BlobBackend{holds, lacks}, testLogger())
	require.NoError(t, multi.Delete(context.Background(), addr))

	// Nothing held the content anywhere.
	gone := new(MockBackend)
	gone.On("Available", mock.Anything).Return(true)
	gone.On("Name").Return("gone")
	gone.On("Delete", mock.Anything, addr).Return(interfaces.ErrNotFound)

	multi = NewMultiBackend([]interfaces.BlobBackend{gone}, testLogger())
	require.ErrorIs(t, multi.Delete(context.Background(), addr), interfaces.ErrNotFound)
}

func TestMultiBackendAvailable(t *testing.T) {
	up := new(MockBackend)
	up.On("Available", mock.Anything).Return(true)

	down := new(MockBackend)
	down.On("Available", mock.Anything).Return(false)

	assert.True(t, NewMultiBackend([]interfaces.BlobBackend{down, up}, testLogger()).Available(context.Background()))
	assert.False(t, NewMultiBackend([]interfaces.BlobBackend{down}, testLogger()).Available(context.Background()))
}

package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockLedger mocks the interfaces.Ledger interface for tests.
type MockLedger struct {
	mock.Mock
}

// Submit mocks the Submit method
func (m *MockLedger) Submit(ctx context.Context, digest []byte) (string, error) {
	args := m.Called(ctx, digest)
	return args.String(0), args.Error(1)
}

package anchor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/optichain/provenance-backend/interfaces"
	"github.com/optichain/provenance-backend/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticChains map[string]interfaces.EventHash

func (c staticChains) TerminalHashes(ctx context.Context) (map[string]interfaces.EventHash, error) {
	return c, nil
}

func sampleChains() staticChains {
	return staticChains{
		"lens-001":  interfaces.EventHash{0x01},
		"lens-002":  interfaces.EventHash{0x02},
		"frame-001": interfaces.EventHash{0x03},
	}
}

func TestComputeDigestDeterministic(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d1 := ComputeDigest(asOf, sampleChains())
	d2 := ComputeDigest(asOf, sampleChains())
	assert.Equal(t, d1, d2)

	// Different snapshots and different times diverge.
	changed := sampleChains()
	changed["lens-001"] = interfaces.EventHash{0xFF}
	assert.NotEqual(t, d1, ComputeDigest(asOf, changed))
	assert.NotEqual(t, d1, ComputeDigest(asOf.Add(time.Hour), sampleChains()))

	// Empty snapshot still digests.
	assert.NotEqual(t, [32]byte{}, ComputeDigest(asOf, nil))
}

func TestPublishConfirms(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Submit", mock.Anything, mock.Anything).Return("0xabc123", nil)

	publisher := NewPublisher(sampleChains(), mockLedger, testLogger())

	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	digest, err := publisher.Publish(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, interfaces.AnchorConfirmed, digest.Status)
	assert.Equal(t, "0xabc123", digest.ConfirmationRef)
	assert.Equal(t, ComputeDigest(asOf, sampleChains()), digest.Digest)
	assert.Len(t, digest.Terminal, 3)
	assert.Empty(t, publisher.PendingDigests())

	mockLedger.AssertExpectations(t)
}

func TestPublishStaysPendingOnLedgerFailure(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Submit", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	publisher := NewPublisher(sampleChains(), mockLedger, testLogger())

	digest, err := publisher.Publish(context.Background(), time.Now())
	require.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
	require.NotNil(t, digest)

	// The digest is recorded locally with no fabricated confirmation.
	assert.Equal(t, interfaces.AnchorPending, digest.Status)
	assert.Empty(t, digest.ConfirmationRef)

	stored, err := publisher.DigestByID(digest.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AnchorPending, stored.Status)
	assert.Len(t, publisher.PendingDigests(), 1)
}

func TestRetryPendingConfirms(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Submit", mock.Anything, mock.Anything).Return("", errors.New("down")).Once()
	mockLedger.On("Submit", mock.Anything, mock.Anything).Return("0xretried", nil)

	publisher := NewPublisher(sampleChains(), mockLedger, testLogger())

	digest, err := publisher.Publish(context.Background(), time.Now())
	require.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)

	confirmed := publisher.RetryPending(context.Background())
	assert.Equal(t, 1, confirmed)

	stored, err := publisher.DigestByID(digest.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AnchorConfirmed, stored.Status)
	assert.Equal(t, "0xretried", stored.ConfirmationRef)
}

func TestDigestByIDNotFound(t *testing.T) {
	publisher := NewPublisher(sampleChains(), new(ledger.MockLedger), testLogger())

	_, err := publisher.DigestByID("no-such-anchor")
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRunPublishesPeriodically(t *testing.T) {
	// The Run goroutine drives the mock, so count submissions through an
	// atomic instead of peeking at the mock's call log.
	var submits atomic.Int64
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Submit", mock.Anything, mock.Anything).Return("0xtick", nil).
		Run(func(mock.Arguments) { submits.Inc() })

	publisher := NewPublisher(sampleChains(), mockLedger, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		publisher.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return submits.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop on context cancellation")
	}
}

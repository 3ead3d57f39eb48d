package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/optichain/provenance-backend/anchor"
	"github.com/optichain/provenance-backend/cas"
	"github.com/optichain/provenance-backend/interfaces"
	"github.com/optichain/provenance-backend/keyvault"
	"github.com/optichain/provenance-backend/ledger"
	"github.com/optichain/provenance-backend/metrics"
	"github.com/optichain/provenance-backend/trace"
	"github.com/optichain/provenance-backend/verifier"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	router http.Handler
	store  *cas.Store
	vault  *keyvault.Vault
	chains *trace.Manager
	ledger *ledger.MockLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := testLogger()

	allowAll := interfaces.AuthorizerFunc(func(ctx context.Context, principal, action, resourceID string) bool {
		return principal != "intruder"
	})

	store := cas.NewStore(cas.NewMemoryBackend(log), allowAll, log)
	vault := keyvault.NewVault(keyvault.NewMemoryStore(), allowAll, []byte("master"), log)
	chains := trace.NewManager(trace.NewMemoryEventStore(), nil, trace.StagePolicyReject, log)

	mockLedger := new(ledger.MockLedger)
	anchors := anchor.NewPublisher(chains, mockLedger, log)

	store.AddReferenceOracle(vault)
	store.AddReferenceOracle(chains)

	handler := NewHandler(store, vault, chains, anchors,
		verifier.New(store, vault, chains, anchors, log), metrics.New(), log)

	srv, err := New(&HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        log,
	}, handler)
	require.NoError(t, err)

	return &testServer{
		router: srv.getRouter(),
		store:  store,
		vault:  vault,
		chains: chains,
		ledger: mockLedger,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestUploadReportFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/products/lens-001/reports", map[string]any{
		"content":   base64.StdEncoding.EncodeToString([]byte("encrypted exam report")),
		"filename":  "exam.pdf",
		"mime_type": "application/pdf",
		"stage":     "quality_control",
		"issuer":    "lab-zeiss",
	}, map[string]string{principalHeader: "lab-zeiss"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody[uploadReportResponse](t, rec)
	assert.NotEmpty(t, resp.KeyID)
	assert.NotEmpty(t, resp.Key)
	require.NotNil(t, resp.Event)
	assert.Equal(t, uint64(0), resp.Event.Sequence)
	require.NotNil(t, resp.Event.Certificate)
	assert.True(t, resp.Event.Certificate.Equal(resp.Address))

	// The blob is retrievable and intact.
	rec = ts.do(t, http.MethodGet, "/api/blobs/"+resp.Address.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "encrypted exam report", rec.Body.String())

	// The returned key verifies against the record.
	rec = ts.do(t, http.MethodPost, "/api/keys/"+resp.KeyID+"/verify",
		map[string]string{"key": resp.Key}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[map[string]bool](t, rec)["match"])
}

func TestUploadReportRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/products/p/reports", map[string]any{
		"content": "!!not-base64!!",
		"stage":   "quality_control",
		"issuer":  "lab",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/products/p/reports", map[string]any{
		"content": base64.StdEncoding.EncodeToString([]byte("x")),
		"stage":   "smelting",
		"issuer":  "lab",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBlobNotFound(t *testing.T) {
	ts := newTestServer(t)

	missing := interfaces.ComputeAddress([]byte("missing"))
	rec := ts.do(t, http.MethodGet, "/api/blobs/"+missing.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/blobs/zz-not-hex", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlobPinningAndDeletion(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	addr, err := ts.store.Put(ctx, []byte("standalone blob"), interfaces.BlobMetadata{})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/blobs/"+addr.String()+"/pin", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Pinned blobs refuse deletion.
	rec = ts.do(t, http.MethodDelete, "/api/blobs/"+addr.String(), nil,
		map[string]string{principalHeader: "admin"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/blobs/"+addr.String()+"/unpin", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Unauthorized principals are refused.
	rec = ts.do(t, http.MethodDelete, "/api/blobs/"+addr.String(), nil,
		map[string]string{principalHeader: "intruder"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/blobs/"+addr.String(), nil,
		map[string]string{principalHeader: "admin"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/blobs/"+addr.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteBlobBlockedByChainReference(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/products/lens-002/reports", map[string]any{
		"content": base64.StdEncoding.EncodeToString([]byte("cited certificate")),
		"stage":   "quality_control",
		"issuer":  "lab",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[uploadReportResponse](t, rec)

	// The chain event and the active key both reference the blob.
	rec = ts.do(t, http.MethodDelete, "/api/blobs/"+resp.Address.String(), nil,
		map[string]string{principalHeader: "admin"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAppendAndVerifyChain(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/products/lens-003/events", map[string]any{
		"stage":  "manufacturing",
		"issuer": "factory-jena",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/products/lens-003/events", map[string]any{
		"stage":  "packaging",
		"issuer": "packco",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Stage regression without correction is rejected.
	rec = ts.do(t, http.MethodPost, "/api/products/lens-003/events", map[string]any{
		"stage":  "manufacturing",
		"issuer": "factory-jena",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// An unstored certificate address is refused.
	rec = ts.do(t, http.MethodPost, "/api/products/lens-003/events", map[string]any{
		"stage":       "distribution",
		"issuer":      "shipco",
		"certificate": interfaces.ComputeAddress([]byte("never stored")).String(),
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/products/lens-003/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/products/lens-003/verify", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verification := decodeBody[trace.ChainVerification](t, rec)
	assert.True(t, verification.Valid)
	assert.Len(t, verification.Events, 2)
}

func TestAnchorLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.On("Submit", mock.Anything, mock.Anything).Return("0xconfirmed", nil)

	rec := ts.do(t, http.MethodPost, "/api/products/lens-004/events", map[string]any{
		"stage":  "retail",
		"issuer": "shop",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/anchors", map[string]any{
		"as_of": time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	published := decodeBody[anchorResponse](t, rec)
	assert.Equal(t, interfaces.AnchorConfirmed, published.Status)
	assert.Equal(t, "0xconfirmed", published.ConfirmationRef)

	rec = ts.do(t, http.MethodGet, "/api/anchors/"+published.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/products/lens-004/anchors/"+published.ID+"/verify", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[verifier.AnchorVerification](t, rec)
	assert.True(t, result.Valid)

	rec = ts.do(t, http.MethodGet, "/api/anchors/no-such-anchor", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnchorPendingWhenLedgerDown(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.On("Submit", mock.Anything, mock.Anything).Return("", assert.AnError)

	rec := ts.do(t, http.MethodPost, "/api/anchors", nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	published := decodeBody[anchorResponse](t, rec)
	assert.Equal(t, interfaces.AnchorPending, published.Status)
	assert.Empty(t, published.ConfirmationRef)
}

func TestRevokeKeyOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	record, rawKey, err := ts.vault.IssueKey(context.Background(), keyvault.IssueKeyRequest{Principal: "lab"})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/keys/"+record.ID+"/revoke", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Second revoke conflicts.
	rec = ts.do(t, http.MethodPost, "/api/keys/"+record.ID+"/revoke", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/keys/"+record.ID+"/verify",
		map[string]string{"key": base64.StdEncoding.EncodeToString(rawKey)}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVerifyBlobEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	addr, err := ts.store.Put(ctx, []byte("verifiable document"), interfaces.BlobMetadata{})
	require.NoError(t, err)

	record, rawKey, err := ts.vault.IssueKey(ctx, keyvault.IssueKeyRequest{
		Principal: "lab",
		Document:  &addr,
	})
	require.NoError(t, err)

	query := url.Values{
		"key_id": {record.ID},
		"key":    {base64.StdEncoding.EncodeToString(rawKey)},
	}
	rec := ts.do(t, http.MethodGet, "/api/blobs/"+addr.String()+"/verify?"+query.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody[verifier.DocumentVerification](t, rec)
	assert.True(t, result.IntegrityOK)
	assert.True(t, result.KeyMatch)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/livez", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

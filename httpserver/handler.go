package httpserver

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/optichain/provenance-backend/anchor"
	"github.com/optichain/provenance-backend/cas"
	"github.com/optichain/provenance-backend/interfaces"
	"github.com/optichain/provenance-backend/keyvault"
	"github.com/optichain/provenance-backend/metrics"
	"github.com/optichain/provenance-backend/trace"
	"github.com/optichain/provenance-backend/verifier"
)

// principalHeader carries the caller identity asserted by the fronting
// gateway. Authentication itself is the gateway's job.
const principalHeader = "X-Principal-ID"

// Handler implements the provenance API endpoints over the core components.
type Handler struct {
	store    *cas.Store
	vault    *keyvault.Vault
	chains   *trace.Manager
	anchors  *anchor.Publisher
	verifier *verifier.Verifier
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(store *cas.Store, vault *keyvault.Vault, chains *trace.Manager, anchors *anchor.Publisher, v *verifier.Verifier, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		vault:    vault,
		chains:   chains,
		anchors:  anchors,
		verifier: v,
		metrics:  m,
		log:      log,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps the sentinel error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrConflict), errors.Is(err, interfaces.ErrKeyInactive):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrInvalidTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrLedgerUnavailable), errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func addressParam(r *http.Request) (interfaces.ContentAddress, error) {
	return interfaces.NewContentAddressFromHex(chi.URLParam(r, "address"))
}

// uploadReportRequest ingests one encrypted document with its custody event.
type uploadReportRequest struct {
	// Content is base64-encoded (already encrypted) document bytes.
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	Stage      string                         `json:"stage"`
	Issuer     string                         `json:"issuer"`
	IssuerName string                         `json:"issuer_name,omitempty"`
	Timestamp  time.Time                      `json:"timestamp,omitzero"`
	Env        *interfaces.EnvironmentReading `json:"environment,omitempty"`
	Extensions map[string]string              `json:"extensions,omitempty"`
	Metadata   map[string]string              `json:"metadata,omitempty"`

	// EscrowPublicKey optionally requests key escrow (PEM).
	EscrowPublicKey string `json:"escrow_public_key,omitempty"`
}

type uploadReportResponse struct {
	Address interfaces.ContentAddress `json:"address"`
	KeyID   string                    `json:"key_id"`

	// Key is the base64 raw document key, returned exactly once.
	Key string `json:"key"`

	Event *interfaces.TraceEvent `json:"event"`
}

// HandleUploadReport stores an encrypted document, issues its key, and then
// appends the custody event citing it, so a chain entry never references
// content that failed to persist.
func (h *Handler) HandleUploadReport(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	principal := r.Header.Get(principalHeader)

	var req uploadReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		h.badRequest(w, "content must be base64: "+err.Error())
		return
	}
	if len(content) == 0 {
		h.badRequest(w, "content is required")
		return
	}

	stage, err := interfaces.ParseTraceStage(req.Stage)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if principal == "" {
		principal = req.Issuer
	}

	addr, err := h.store.Put(r.Context(), content, interfaces.BlobMetadata{
		Filename: req.Filename,
		MimeType: req.MimeType,
		Labels:   req.Metadata,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.IncBlobsStored()

	record, rawKey, err := h.vault.IssueKey(r.Context(), keyvault.IssueKeyRequest{
		Principal:       principal,
		Filename:        req.Filename,
		MimeType:        req.MimeType,
		Document:        &addr,
		Metadata:        req.Metadata,
		EscrowPublicKey: []byte(req.EscrowPublicKey),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.IncKeysIssued()

	event, err := h.chains.AppendEvent(r.Context(), trace.AppendRequest{
		ProductID:   productID,
		Stage:       stage,
		Issuer:      req.Issuer,
		IssuerName:  req.IssuerName,
		Timestamp:   req.Timestamp,
		Certificate: &addr,
		Environment: req.Env,
		Extensions:  req.Extensions,
	})
	if err != nil {
		// Blob and key are already persisted; the caller can retry the
		// event append without re-uploading.
		h.writeError(w, err)
		return
	}
	h.metrics.IncEventsAppended()

	h.writeJSON(w, http.StatusCreated, uploadReportResponse{
		Address: addr,
		KeyID:   record.ID,
		Key:     base64.StdEncoding.EncodeToString(rawKey),
		Event:   event,
	})
}

// HandleGetBlob serves stored blob bytes after the integrity reread.
func (h *Handler) HandleGetBlob(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	data, err := h.store.Get(r.Context(), addr)
	if err != nil {
		if errors.Is(err, interfaces.ErrCorrupted) {
			h.metrics.IncCorruptionDetected()
		}
		h.writeError(w, err)
		return
	}
	h.metrics.IncBlobsFetched()

	contentType := "application/octet-stream"
	if info, err := h.store.Stat(addr); err == nil && info.MimeType != "" {
		contentType = info.MimeType
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleStatBlob returns blob metadata and retention state.
func (h *Handler) HandleStatBlob(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	info, err := h.store.Stat(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// HandlePinBlob marks a blob as retained.
func (h *Handler) HandlePinBlob(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if err := h.store.Pin(addr); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnpinBlob clears a blob's retention flag.
func (h *Handler) HandleUnpinBlob(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if err := h.store.Unpin(addr); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteBlob physically removes a blob, subject to authorization,
// pinning, and live references.
func (h *Handler) HandleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	if err := h.store.Delete(r.Context(), addr, r.Header.Get(principalHeader)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyBlob rereads a document and optionally checks a presented key.
// Query parameters: key_id, key (base64).
func (h *Handler) HandleVerifyBlob(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	keyID := r.URL.Query().Get("key_id")
	var candidate []byte
	if encoded := r.URL.Query().Get("key"); encoded != "" {
		candidate, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			h.badRequest(w, "key must be base64: "+err.Error())
			return
		}
	}

	result, err := h.verifier.VerifyDocument(r.Context(), addr, keyID, candidate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !result.IntegrityOK {
		h.metrics.IncCorruptionDetected()
	}
	h.writeJSON(w, http.StatusOK, result)
}

type appendEventRequest struct {
	Stage       string                         `json:"stage"`
	Issuer      string                         `json:"issuer"`
	IssuerName  string                         `json:"issuer_name,omitempty"`
	Timestamp   time.Time                      `json:"timestamp,omitzero"`
	Certificate string                         `json:"certificate,omitempty"`
	Environment *interfaces.EnvironmentReading `json:"environment,omitempty"`
	Correction  bool                           `json:"correction,omitempty"`
	Extensions  map[string]string              `json:"extensions,omitempty"`
}

// HandleAppendEvent appends one custody event without a document upload.
func (h *Handler) HandleAppendEvent(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	var req appendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	stage, err := interfaces.ParseTraceStage(req.Stage)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	var cert *interfaces.ContentAddress
	if req.Certificate != "" {
		parsed, err := interfaces.NewContentAddressFromHex(req.Certificate)
		if err != nil {
			h.badRequest(w, err.Error())
			return
		}
		// The certificate must already be stored: a chain entry never
		// references content that failed to persist.
		if _, err := h.store.Stat(parsed); err != nil {
			h.writeError(w, err)
			return
		}
		cert = &parsed
	}

	event, err := h.chains.AppendEvent(r.Context(), trace.AppendRequest{
		ProductID:   productID,
		Stage:       stage,
		Issuer:      req.Issuer,
		IssuerName:  req.IssuerName,
		Timestamp:   req.Timestamp,
		Certificate: cert,
		Environment: req.Environment,
		Correction:  req.Correction,
		Extensions:  req.Extensions,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.IncEventsAppended()

	h.writeJSON(w, http.StatusCreated, event)
}

// HandleGetEvents returns a product's custody chain in append order.
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.chains.Events(r.Context(), chi.URLParam(r, "product_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleVerifyChain recomputes a product's chain.
func (h *Handler) HandleVerifyChain(w http.ResponseWriter, r *http.Request) {
	verification, err := h.chains.VerifyChain(r.Context(), chi.URLParam(r, "product_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, verification)
}

type publishAnchorRequest struct {
	AsOf time.Time `json:"as_of,omitzero"`
}

type anchorResponse struct {
	ID              string                          `json:"id"`
	AsOf            time.Time                       `json:"as_of"`
	Digest          string                          `json:"digest"`
	Terminal        map[string]interfaces.EventHash `json:"terminal"`
	Status          interfaces.AnchorStatus         `json:"status"`
	ConfirmationRef string                          `json:"confirmation_ref,omitempty"`
}

func toAnchorResponse(d interfaces.AnchorDigest) anchorResponse {
	return anchorResponse{
		ID:              d.ID,
		AsOf:            d.AsOf,
		Digest:          hex.EncodeToString(d.Digest[:]),
		Terminal:        d.Terminal,
		Status:          d.Status,
		ConfirmationRef: d.ConfirmationRef,
	}
}

// HandlePublishAnchor computes and submits an anchor digest. A ledger outage
// is not a failure: the digest is recorded Pending and the response is 202.
func (h *Handler) HandlePublishAnchor(w http.ResponseWriter, r *http.Request) {
	var req publishAnchorRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badRequest(w, "invalid JSON body: "+err.Error())
			return
		}
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	digest, err := h.anchors.Publish(r.Context(), asOf)
	if err != nil {
		if errors.Is(err, interfaces.ErrLedgerUnavailable) && digest != nil {
			h.metrics.IncAnchorsPublished(string(interfaces.AnchorPending))
			h.writeJSON(w, http.StatusAccepted, toAnchorResponse(*digest))
			return
		}
		h.writeError(w, err)
		return
	}

	h.metrics.IncAnchorsPublished(string(digest.Status))
	h.writeJSON(w, http.StatusCreated, toAnchorResponse(*digest))
}

// HandleGetAnchor returns a recorded anchor digest.
func (h *Handler) HandleGetAnchor(w http.ResponseWriter, r *http.Request) {
	digest, err := h.anchors.DigestByID(chi.URLParam(r, "anchor_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAnchorResponse(digest))
}

// HandleVerifyAnchor checks a product's history against an anchored
// checkpoint.
func (h *Handler) HandleVerifyAnchor(w http.ResponseWriter, r *http.Request) {
	result, err := h.verifier.VerifyAgainstAnchor(r.Context(),
		chi.URLParam(r, "product_id"), chi.URLParam(r, "anchor_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleRevokeKey permanently deactivates a key.
func (h *Handler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.Revoke(r.Context(), chi.URLParam(r, "key_id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.IncKeysRevoked()
	w.WriteHeader(http.StatusNoContent)
}

type verifyKeyRequest struct {
	// Key is the base64 candidate key.
	Key string `json:"key"`
}

// HandleVerifyKey checks a presented key against the record's fingerprint.
func (h *Handler) HandleVerifyKey(w http.ResponseWriter, r *http.Request) {
	var req verifyKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	candidate, err := base64.StdEncoding.DecodeString(req.Key)
	if err != nil {
		h.badRequest(w, "key must be base64: "+err.Error())
		return
	}

	match, err := h.vault.VerifyKey(chi.URLParam(r, "key_id"), candidate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"match": match})
}

package handler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/remiblancher/ocspcheck/internal/api/dto"
	apierrors "github.com/remiblancher/ocspcheck/internal/api/errors"
	"github.com/remiblancher/ocspcheck/internal/api/service"
)

// ContentTypeOCSPResponse is the media type of a DER-encoded OCSP response
// (RFC 6960 Appendix A.2).
const ContentTypeOCSPResponse = "application/ocsp-response"

// DefaultMaxBodyBytes limits request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// OCSPHandler handles OCSP-related HTTP requests.
type OCSPHandler struct {
	service      *service.OCSPService
	maxBodyBytes int64
}

// NewOCSPHandler creates a new OCSPHandler. A maxBodyBytes of zero or less
// selects DefaultMaxBodyBytes.
func NewOCSPHandler(ocspService *service.OCSPService, maxBodyBytes int64) *OCSPHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &OCSPHandler{service: ocspService, maxBodyBytes: maxBodyBytes}
}

// Validate handles POST /api/v1/ocsp/validate
func (h *OCSPHandler) Validate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req dto.OCSPValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if h.tooLarge(w, err) {
			return
		}
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	resp, err := h.service.ValidateRequest(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ValidateRaw handles POST /ocsp/validate. The body is a DER-encoded OCSP
// response; the request nonce is given in hex by the nonce query parameter
// and receipt=true requests a receipt.
func (h *OCSPHandler) ValidateRaw(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != ContentTypeOCSPResponse {
			respondError(w, http.StatusUnsupportedMediaType, apierrors.NewBadRequest(
				"Content-Type must be "+ContentTypeOCSPResponse))
			return
		}
	}

	query := r.URL.Query()
	nonce, err := hex.DecodeString(query.Get("nonce"))
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("nonce must be hex-encoded"))
		return
	}
	receipt := false
	if v := query.Get("receipt"); v != "" {
		receipt, err = strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("receipt must be a boolean"))
			return
		}
	}

	der, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		if h.tooLarge(w, err) {
			return
		}
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("failed to read request body"))
		return
	}
	if len(der) == 0 {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("request body is empty"))
		return
	}

	out, err := h.service.Validate(r.Context(), der, nonce, receipt)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, service.NewValidateResponse(out))
}

func (h *OCSPHandler) tooLarge(w http.ResponseWriter, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	respondError(w, http.StatusRequestEntityTooLarge, apierrors.NewTooLarge(maxErr.Limit))
	return true
}

// handleServiceError maps a service error to an HTTP error response.
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}

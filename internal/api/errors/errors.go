// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/remiblancher/ocspcheck/internal/api/dto"
	"github.com/remiblancher/ocspcheck/internal/api/service"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

// Error codes for API responses. Validation failures use the kind codes
// of package ocsp (NONCE_MISMATCH, UNTRUSTED_SIGNER, ...).
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeReceiptsDisabled = "RECEIPTS_DISABLED"
	CodeTimeout          = "TIMEOUT"
	CodeAborted          = "ABORTED"
	CodeAudit            = "AUDIT_ERROR"
	CodeTooLarge         = "REQUEST_TOO_LARGE"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL_ERROR"
)

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	// An audit failure takes precedence over the validation outcome it was
	// recording.
	switch {
	case errors.Is(err, service.ErrAudit):
		return http.StatusInternalServerError, &dto.APIError{
			Code:    CodeAudit,
			Message: "The operation could not be recorded in the audit log",
		}
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeInvalidRequest,
			Message: err.Error(),
		}
	case errors.Is(err, service.ErrReceiptsDisabled):
		return http.StatusPreconditionFailed, &dto.APIError{
			Code:    CodeReceiptsDisabled,
			Message: err.Error(),
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, &dto.APIError{
			Code:    CodeTimeout,
			Message: err.Error(),
		}
	case errors.Is(err, service.ErrAborted):
		return http.StatusServiceUnavailable, &dto.APIError{
			Code:    CodeAborted,
			Message: err.Error(),
		}
	}

	if kind := ocsp.KindOf(err); kind != "" {
		apiErr := &dto.APIError{
			Code:    kind,
			Message: err.Error(),
		}
		var ve *ocsp.ValidationError
		if errors.As(err, &ve) {
			apiErr.Details = validationDetails(ve)
		}
		return http.StatusUnprocessableEntity, apiErr
	}

	// Default internal error
	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

func validationDetails(ve *ocsp.ValidationError) map[string]string {
	switch {
	case errors.Is(ve.Kind, ocsp.ErrResponder):
		return map[string]string{
			"response_status":      ve.Status.String(),
			"response_status_code": strconv.Itoa(int(ve.Status)),
		}
	case errors.Is(ve.Kind, ocsp.ErrNonceMismatch):
		return map[string]string{
			"expected_nonce": hex.EncodeToString(ve.Expected),
			"received_nonce": hex.EncodeToString(ve.Received),
		}
	}
	return nil
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewTooLarge creates an error for a request body over the size limit.
func NewTooLarge(limit int64) *dto.APIError {
	return &dto.APIError{
		Code:    CodeTooLarge,
		Message: "request body too large",
		Details: map[string]string{"limit_bytes": strconv.FormatInt(limit, 10)},
	}
}

// NewNotFound creates a not found error.
func NewNotFound(resource, id string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeNotFound,
		Message: resource + " not found",
		Details: map[string]string{"id": id},
	}
}

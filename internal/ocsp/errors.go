package ocsp

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Validation failure kinds. Every error returned by Checker.Validate matches
// exactly one of these with errors.Is.
var (
	ErrResponder         = errors.New("responder returned unsuccessful status")
	ErrMalformedResponse = errors.New("malformed OCSP response")
	ErrNonceMissing      = errors.New("nonce extension missing from response")
	ErrNonceMismatch     = errors.New("response nonce does not match request nonce")
	ErrSignerUnavailable = errors.New("responder certificate unavailable")
	ErrUntrustedSigner   = errors.New("responder certificate is not trusted")
	ErrSignatureInvalid  = errors.New("response signature is invalid")
	ErrVerification      = errors.New("signature verification failed")
)

// Machine-readable kind codes, as returned by KindOf.
const (
	KindResponder         = "RESPONDER_ERROR"
	KindMalformedResponse = "MALFORMED_RESPONSE"
	KindNonceMissing      = "NONCE_MISSING"
	KindNonceMismatch     = "NONCE_MISMATCH"
	KindSignerUnavailable = "SIGNER_CERTIFICATE_UNAVAILABLE"
	KindUntrustedSigner   = "UNTRUSTED_SIGNER"
	KindSignatureInvalid  = "SIGNATURE_INVALID"
	KindVerification      = "VERIFICATION_ERROR"
)

var kinds = []struct {
	sentinel error
	code     string
}{
	{ErrResponder, KindResponder},
	{ErrMalformedResponse, KindMalformedResponse},
	{ErrNonceMissing, KindNonceMissing},
	{ErrNonceMismatch, KindNonceMismatch},
	{ErrSignerUnavailable, KindSignerUnavailable},
	{ErrUntrustedSigner, KindUntrustedSigner},
	{ErrSignatureInvalid, KindSignatureInvalid},
	{ErrVerification, KindVerification},
}

// ValidationError carries the context of a failed validation step.
type ValidationError struct {
	Kind error // one of the Err* sentinels

	// Status is the top-level response status (ErrResponder only).
	Status ResponseStatus

	// Expected and Received are the nonces compared (ErrNonceMismatch only).
	// They are diagnostic values.
	Expected []byte
	Received []byte

	// Err is the underlying cause, if any.
	Err error
}

func (e *ValidationError) Error() string {
	var msg string
	switch {
	case errors.Is(e.Kind, ErrResponder):
		msg = fmt.Sprintf("%v: %s (%d)", e.Kind, e.Status, int(e.Status))
	case errors.Is(e.Kind, ErrNonceMismatch):
		msg = fmt.Sprintf("%v: expected %s, received %s",
			e.Kind, hex.EncodeToString(e.Expected), hex.EncodeToString(e.Received))
	default:
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind, cause error) *ValidationError {
	return &ValidationError{Kind: kind, Err: cause}
}

// KindOf returns the kind code of a validation error, or "" when err does
// not come from validation.
func KindOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		for _, k := range kinds {
			if ve.Kind == k.sentinel {
				return k.code
			}
		}
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.code
		}
	}
	return ""
}

package dto

// OCSPValidateRequest represents an OCSP response validation request.
type OCSPValidateRequest struct {
	// Response is the DER-encoded OCSP response.
	Response BinaryData `json:"response"`

	// Nonce is the hex-encoded nonce sent in the OCSP request.
	Nonce string `json:"nonce"`

	// Receipt requests a signed validation receipt.
	Receipt bool `json:"receipt,omitempty"`
}

// OCSPValidateResponse represents a successfully validated OCSP response.
type OCSPValidateResponse struct {
	// Valid is always true; failures are reported as errors.
	Valid bool `json:"valid"`

	// ProducedAt is when the response was produced (RFC3339).
	ProducedAt string `json:"produced_at"`

	// SignatureAlgorithm is the algorithm that signed the response.
	SignatureAlgorithm string `json:"signature_algorithm"`

	// Responder describes the certificate that signed the response.
	Responder *OCSPResponderInfo `json:"responder,omitempty"`

	// Statuses lists the certificate statuses, ordered by serial.
	Statuses []OCSPStatus `json:"statuses"`

	// Receipt is the COSE_Sign1 validation receipt, when requested.
	Receipt *BinaryData `json:"receipt,omitempty"`
}

// OCSPStatus represents certificate status from OCSP.
type OCSPStatus struct {
	// Serial is the hex-encoded certificate serial number.
	Serial string `json:"serial"`

	// Status is "good", "revoked", or "unknown".
	Status string `json:"status"`

	// RevokedAt is present if status is "revoked".
	RevokedAt string `json:"revoked_at,omitempty"`

	// RevocationReason is present if status is "revoked".
	RevocationReason string `json:"revocation_reason,omitempty"`

	// RevocationReasonCode is the RFC 5280 reason code if status is "revoked".
	RevocationReasonCode *int `json:"revocation_reason_code,omitempty"`

	ThisUpdate string `json:"this_update"`
	NextUpdate string `json:"next_update,omitempty"`
}

// OCSPResponderInfo contains OCSP responder information.
type OCSPResponderInfo struct {
	// Name is the responder certificate subject.
	Name string `json:"name"`

	// Issuer is the responder certificate issuer.
	Issuer string `json:"issuer"`

	// Fingerprint is the hex SHA-256 of the responder certificate.
	Fingerprint string `json:"fingerprint"`

	// NotAfter is the end of the responder certificate validity (RFC3339).
	NotAfter string `json:"not_after"`
}

package cli

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/remiblancher/ocspcheck/internal/api/dto"
	apierrors "github.com/remiblancher/ocspcheck/internal/api/errors"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

// OCSPSignParams holds parameters for OCSP response signing.
type OCSPSignParams struct {
	Serials          []*big.Int
	CertStatus       ocsp.CertStatus
	RevocationTime   time.Time
	RevocationReason ocsp.RevocationReason
	HasReason        bool
	CACert           *x509.Certificate
	ResponderCert    *x509.Certificate
	Signer           crypto.Signer
	Validity         time.Duration
	Nonce            []byte
	ResponderByName  bool
}

// ParseOCSPSerial parses a hex serial number string.
func ParseOCSPSerial(serialHex string) (*big.Int, error) {
	serialBytes, err := ParseHex(serialHex)
	if err != nil || len(serialBytes) == 0 {
		return nil, fmt.Errorf("invalid serial number: %q", serialHex)
	}
	return new(big.Int).SetBytes(serialBytes), nil
}

// ParseOCSPCertStatus parses a status string to CertStatus.
func ParseOCSPCertStatus(status string) (ocsp.CertStatus, error) {
	switch strings.ToLower(status) {
	case "good":
		return ocsp.CertStatusGood, nil
	case "revoked":
		return ocsp.CertStatusRevoked, nil
	case "unknown":
		return ocsp.CertStatusUnknown, nil
	default:
		return 0, fmt.Errorf("invalid status: %s (must be good, revoked, or unknown)", status)
	}
}

// ParseOCSPRevocationTime parses a revocation time string (RFC3339).
// Returns current time if timeStr is empty.
func ParseOCSPRevocationTime(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid revocation time: %w", err)
	}
	return t, nil
}

// ParseResponseStatus parses an unsuccessful OCSPResponseStatus name.
func ParseResponseStatus(s string) (ocsp.ResponseStatus, error) {
	for _, st := range []ocsp.ResponseStatus{
		ocsp.StatusMalformedRequest,
		ocsp.StatusInternalError,
		ocsp.StatusTryLater,
		ocsp.StatusSigRequired,
		ocsp.StatusUnauthorized,
	} {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("invalid response status: %s", s)
}

// BuildOCSPSignResponse builds an OCSP response from the parameters.
func BuildOCSPSignResponse(params *OCSPSignParams) ([]byte, error) {
	if len(params.Serials) == 0 {
		return nil, fmt.Errorf("at least one serial is required")
	}

	// Build response
	now := time.Now().UTC()
	var nextUpdate time.Time
	if params.Validity > 0 {
		nextUpdate = now.Add(params.Validity)
	}
	builder := ocsp.NewResponseBuilder(params.ResponderCert, params.Signer).SetProducedAt(now)
	if params.ResponderByName {
		builder.ResponderIDByName()
	}
	if params.CACert != nil && !params.CACert.Equal(params.ResponderCert) {
		builder.AddCertificate(params.CACert)
	}

	for _, serial := range params.Serials {
		certID, err := ocsp.NewCertIDFromSerial(crypto.SHA256, params.CACert, serial)
		if err != nil {
			return nil, fmt.Errorf("failed to create CertID: %w", err)
		}
		switch params.CertStatus {
		case ocsp.CertStatusGood:
			builder.AddGood(certID, now, nextUpdate)
		case ocsp.CertStatusRevoked:
			if params.HasReason {
				builder.AddRevoked(certID, now, nextUpdate, params.RevocationTime, params.RevocationReason)
			} else {
				builder.AddRevokedWithoutReason(certID, now, nextUpdate, params.RevocationTime)
			}
		case ocsp.CertStatusUnknown:
			builder.AddUnknown(certID, now, nextUpdate)
		}
	}
	if params.Nonce != nil {
		builder.AddNonce(params.Nonce)
	}

	responseData, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build OCSP response: %w", err)
	}

	return responseData, nil
}

// PrintOCSPSignResult prints the OCSP sign operation result.
func PrintOCSPSignResult(w io.Writer, output string, params *OCSPSignParams) {
	fmt.Fprintf(w, "OCSP response written to %s\n", output)
	for _, serial := range params.Serials {
		fmt.Fprintf(w, "  Serial:     %s\n", serial.Text(16))
	}
	fmt.Fprintf(w, "  Status:     %s\n", params.CertStatus)
	if params.CertStatus == ocsp.CertStatusRevoked {
		fmt.Fprintf(w, "  Revoked:    %s\n", params.RevocationTime.UTC().Format(time.RFC3339))
		if params.HasReason {
			fmt.Fprintf(w, "  Reason:     %s\n", params.RevocationReason)
		}
	}
	if params.Nonce != nil {
		fmt.Fprintf(w, "  Nonce:      %x\n", params.Nonce)
	}
	if params.Validity > 0 {
		fmt.Fprintf(w, "  Valid For:  %s\n", params.Validity)
	}
}

// PrintValidation prints a validated response.
func PrintValidation(w io.Writer, resp *dto.OCSPValidateResponse, color bool) {
	fmt.Fprintf(w, "OCSP response: %s\n", FormatStatus("valid", color))
	fmt.Fprintf(w, "  Produced At:  %s\n", resp.ProducedAt)
	fmt.Fprintf(w, "  Algorithm:    %s\n", resp.SignatureAlgorithm)
	if resp.Responder != nil {
		fmt.Fprintf(w, "  Responder:    %s\n", resp.Responder.Name)
		fmt.Fprintf(w, "  Issued By:    %s\n", resp.Responder.Issuer)
		fmt.Fprintf(w, "  Fingerprint:  %s\n", resp.Responder.Fingerprint)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Statuses (%d):\n", len(resp.Statuses))
	for _, st := range resp.Statuses {
		fmt.Fprintf(w, "  %-20s %s", st.Serial, FormatStatus(st.Status, color))
		if st.Status == "revoked" {
			fmt.Fprintf(w, " at %s (%s)", st.RevokedAt, st.RevocationReason)
		}
		fmt.Fprintf(w, "  this=%s", st.ThisUpdate)
		if st.NextUpdate != "" {
			fmt.Fprintf(w, " next=%s", st.NextUpdate)
		}
		fmt.Fprintln(w)
	}
}

// PrintValidationError prints a failed validation with its kind and any
// diagnostic details.
func PrintValidationError(w io.Writer, err error, color bool) {
	_, apiErr := apierrors.MapError(err)
	fmt.Fprintf(w, "OCSP response: %s\n", FormatStatus("invalid", color))
	fmt.Fprintf(w, "  Kind:    %s\n", apiErr.Code)
	fmt.Fprintf(w, "  Error:   %s\n", err)

	keys := make([]string, 0, len(apiErr.Details))
	for k := range apiErr.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, apiErr.Details[k])
	}
}

package ocsp

import (
	"crypto/x509"
	"math/big"
	"sort"
	"time"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

// ValidationResult is the outcome of a successful validation: the response
// and the status of every certificate it reports on, keyed by serial number.
// It is immutable; accessors return copies.
type ValidationResult struct {
	response *Response
	basic    *BasicResponse
	signer   *x509.Certificate
	statuses map[string]StatusInfo
}

func serialKey(serial *big.Int) string {
	return serial.Text(16)
}

// Response returns the validated response.
func (r *ValidationResult) Response() *Response {
	return r.response
}

// ProducedAt returns the producedAt time of the validated response.
func (r *ValidationResult) ProducedAt() time.Time {
	return r.basic.ProducedAt
}

// SignerCertificate returns the responder certificate that signed the response.
func (r *ValidationResult) SignerCertificate() *x509.Certificate {
	return r.signer
}

// SignatureAlgorithm returns the name of the algorithm that signed the
// response, or its dotted OID when the algorithm has no name.
func (r *ValidationResult) SignatureAlgorithm() string {
	oid := r.basic.SignatureAlgorithm.Algorithm
	if alg := pkicrypto.AlgorithmFromOID(oid); alg != pkicrypto.AlgUnknown {
		return alg.String()
	}
	return oid.String()
}

// Status returns the status reported for serial.
func (r *ValidationResult) Status(serial *big.Int) (StatusInfo, bool) {
	if serial == nil {
		return StatusInfo{}, false
	}
	info, ok := r.statuses[serialKey(serial)]
	if !ok {
		return StatusInfo{}, false
	}
	return copyStatusInfo(info), true
}

// Statuses returns all statuses ordered by serial number.
func (r *ValidationResult) Statuses() []StatusInfo {
	out := make([]StatusInfo, 0, len(r.statuses))
	for _, info := range r.statuses {
		out = append(out, copyStatusInfo(info))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Serial.Cmp(out[j].Serial) < 0
	})
	return out
}

// Len returns the number of distinct serial numbers in the result.
func (r *ValidationResult) Len() int {
	return len(r.statuses)
}

func copyStatusInfo(info StatusInfo) StatusInfo {
	if info.Serial != nil {
		info.Serial = new(big.Int).Set(info.Serial)
	}
	return info
}

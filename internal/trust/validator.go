package trust

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

// ErrNoTrustAnchors is returned when the repository holds no trust anchors.
var ErrNoTrustAnchors = errors.New("no trust anchors configured")

// PathValidator verifies that a responder certificate chains, through the
// repository's intermediates, to one of its trust anchors.
type PathValidator struct {
	Repository Repository

	// RequireOCSPSigning requires id-kp-OCSPSigning on the responder
	// certificate and every certificate above it that restricts EKUs.
	RequireOCSPSigning bool

	// Now returns the verification time. Defaults to time.Now.
	Now func() time.Time
}

var _ ocsp.PathValidator = (*PathValidator)(nil)

// ValidatePath implements ocsp.PathValidator.
func (v *PathValidator) ValidatePath(cert *x509.Certificate) error {
	if cert == nil {
		return errors.New("no certificate to validate")
	}
	if v.Repository == nil {
		return ErrNoTrustAnchors
	}

	trusted := v.Repository.TrustedCertificates()
	if len(trusted) == 0 {
		return ErrNoTrustAnchors
	}
	roots := x509.NewCertPool()
	for _, c := range trusted {
		roots.AddCert(c)
	}
	intermediates := x509.NewCertPool()
	for _, c := range v.Repository.IntermediateCertificates() {
		intermediates.AddCert(c)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if v.RequireOCSPSigning {
		opts.KeyUsages = []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning}
	}
	if v.Now != nil {
		opts.CurrentTime = v.Now()
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("verify %q: %w", cert.Subject.String(), err)
	}
	return nil
}

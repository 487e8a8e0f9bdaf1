package ocsp

import (
	"crypto"
	"crypto/x509"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

// PathValidator checks that a responder certificate chains to a trusted root.
type PathValidator interface {
	ValidatePath(cert *x509.Certificate) error
}

// PathValidatorFunc adapts a function to PathValidator.
type PathValidatorFunc func(cert *x509.Certificate) error

// ValidatePath implements PathValidator.
func (f PathValidatorFunc) ValidatePath(cert *x509.Certificate) error { return f(cert) }

// SignatureVerifier checks the signature of a basic response.
//
// It returns (false, nil) when the signature does not verify and a non-nil
// error when verification could not be carried out.
type SignatureVerifier interface {
	VerifySignature(basic *BasicResponse, pub crypto.PublicKey) (bool, error)
}

// SignatureVerifierFunc adapts a function to SignatureVerifier.
type SignatureVerifierFunc func(basic *BasicResponse, pub crypto.PublicKey) (bool, error)

// VerifySignature implements SignatureVerifier.
func (f SignatureVerifierFunc) VerifySignature(basic *BasicResponse, pub crypto.PublicKey) (bool, error) {
	return f(basic, pub)
}

// ProviderVerifier verifies signatures with a provider from the crypto
// registry. The provider is looked up on every call, so registration only
// has to happen before the first validation.
type ProviderVerifier struct {
	// Provider is the registry name; empty selects the default provider.
	Provider string
}

// VerifySignature implements SignatureVerifier.
func (v ProviderVerifier) VerifySignature(basic *BasicResponse, pub crypto.PublicKey) (bool, error) {
	name := v.Provider
	if name == "" {
		name = pkicrypto.DefaultProviderName
	}
	p, err := pkicrypto.Lookup(name)
	if err != nil {
		return false, err
	}
	return p.Verify(basic.SignatureAlgorithm.Algorithm, pub, basic.TBSResponseData, basic.Signature)
}

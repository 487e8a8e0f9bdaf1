package ocsp

import (
	"crypto/subtle"
	"errors"
	"fmt"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

// Checker validates OCSP responses against a request nonce and a trust
// configuration. A Checker has no mutable state and is safe for concurrent
// use.
type Checker struct {
	paths            PathValidator
	verifier         SignatureVerifier
	rejectDuplicates bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithSignatureVerifier replaces the provider-backed signature verifier.
func WithSignatureVerifier(v SignatureVerifier) Option {
	return func(c *Checker) {
		c.verifier = v
	}
}

// WithRejectDuplicateSerials makes responses that report the same serial
// number more than once fail with ErrMalformedResponse. By default the last
// entry for a serial wins.
func WithRejectDuplicateSerials() Option {
	return func(c *Checker) {
		c.rejectDuplicates = true
	}
}

// NewChecker creates a Checker that trusts responder certificates accepted
// by paths.
func NewChecker(paths PathValidator, opts ...Option) (*Checker, error) {
	if paths == nil {
		return nil, errors.New("path validator is required")
	}
	c := &Checker{
		paths:    paths,
		verifier: ProviderVerifier{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.verifier == nil {
		return nil, errors.New("signature verifier is required")
	}
	return c, nil
}

// ValidateDER parses a DER-encoded response and validates it.
func (c *Checker) ValidateDER(der []byte, nonce []byte) (*ValidationResult, error) {
	resp, err := ParseResponse(der)
	if err != nil {
		return nil, err
	}
	return c.Validate(resp, nonce)
}

// Validate checks resp and returns the status of every certificate it
// reports on. The steps run in a fixed order and the first failure is
// returned; no partial result is produced.
//
//  1. top-level status must be successful (ErrResponder)
//  2. the basic response must decode (ErrMalformedResponse)
//  3. the nonce extension must be present (ErrNonceMissing), decode
//     (ErrMalformedResponse) and equal nonce (ErrNonceMismatch)
//  4. the first embedded certificate is the signer (ErrSignerUnavailable)
//  5. the signer must pass path validation (ErrUntrustedSigner)
//  6. the signature must verify with the signer's key (ErrSignatureInvalid,
//     ErrVerification)
//  7. every entry is classified into the result
func (c *Checker) Validate(resp *Response, nonce []byte) (*ValidationResult, error) {
	if resp == nil {
		return nil, newError(ErrMalformedResponse, errors.New("response is nil"))
	}

	if resp.Status() != StatusSuccessful {
		return nil, &ValidationError{Kind: ErrResponder, Status: resp.Status()}
	}

	basic, err := resp.Basic()
	if err != nil {
		return nil, err
	}

	if err := checkNonce(basic, nonce); err != nil {
		return nil, err
	}

	signer, err := basic.SignerCertificate()
	if err != nil {
		return nil, newError(ErrSignerUnavailable, err)
	}

	if err := c.paths.ValidatePath(signer); err != nil {
		return nil, newError(ErrUntrustedSigner, err)
	}

	pub, err := pkicrypto.PublicKeyFromCertificate(signer)
	if err != nil {
		return nil, newError(ErrVerification, err)
	}
	ok, err := c.verifier.VerifySignature(basic, pub)
	if err != nil {
		return nil, newError(ErrVerification, err)
	}
	if !ok {
		return nil, newError(ErrSignatureInvalid, nil)
	}

	statuses := make(map[string]StatusInfo, len(basic.Responses))
	for _, sr := range basic.Responses {
		info := Classify(sr)
		key := serialKey(info.Serial)
		if _, dup := statuses[key]; dup && c.rejectDuplicates {
			return nil, newError(ErrMalformedResponse, fmt.Errorf("duplicate serial number %s", key))
		}
		statuses[key] = info
	}

	return &ValidationResult{
		response: resp,
		basic:    basic,
		signer:   signer,
		statuses: statuses,
	}, nil
}

func checkNonce(basic *BasicResponse, expected []byte) error {
	value, ok := basic.ExtensionValue(OIDOcspNonce)
	if !ok {
		return newError(ErrNonceMissing, nil)
	}

	received, err := DecodeNonce(value)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(received, expected) != 1 {
		return &ValidationError{
			Kind:     ErrNonceMismatch,
			Expected: append([]byte{}, expected...),
			Received: received,
		}
	}
	return nil
}

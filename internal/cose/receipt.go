package cose

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

// ContentType is the protected content type of a receipt.
const ContentType = "application/ocsp-receipt+cbor"

// ReceiptVersion is the claims version this package writes and accepts.
const ReceiptVersion = 1

// headerX5Chain is the COSE x5chain header label (RFC 9360).
const headerX5Chain int64 = 33

var (
	// ErrInvalidReceipt is returned when a receipt cannot be decoded or its
	// claims are not well formed.
	ErrInvalidReceipt = errors.New("invalid receipt")

	// ErrNoVerificationKey is returned when neither the caller nor the
	// receipt supplies a key to verify against.
	ErrNoVerificationKey = errors.New("no public key available for verification")
)

var canonicalEncMode = func() cbor.EncMode {
	opts := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		TimeTag:       cbor.EncTagNone,
		ShortestFloat: cbor.ShortestFloat16,
	}
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Claims is the signed content of a receipt. Times are Unix seconds.
type Claims struct {
	Version            int     `cbor:"version"`
	IssuedAt           int64   `cbor:"iat"`
	ProducedAt         int64   `cbor:"produced_at"`
	Responder          string  `cbor:"responder"`
	ResponderKeyID     []byte  `cbor:"responder_kid"`
	Nonce              []byte  `cbor:"nonce,omitempty"`
	SignatureAlgorithm string  `cbor:"sig_alg"`
	Entries            []Entry `cbor:"entries"`
}

// Entry is the status of one certificate. Serial is lower-case hex.
type Entry struct {
	Serial     string `cbor:"serial"`
	Status     string `cbor:"status"`
	RevokedAt  int64  `cbor:"revoked_at,omitempty"`
	Reason     *int   `cbor:"reason,omitempty"`
	ThisUpdate int64  `cbor:"this_update"`
	NextUpdate int64  `cbor:"next_update,omitempty"`
}

// NewClaims summarizes a validation result. Entries are ordered by serial.
func NewClaims(result *ocsp.ValidationResult, nonce []byte, issuedAt time.Time) (*Claims, error) {
	if result == nil {
		return nil, errors.New("validation result is nil")
	}
	signer := result.SignerCertificate()
	if signer == nil {
		return nil, errors.New("validation result has no signer certificate")
	}

	c := &Claims{
		Version:            ReceiptVersion,
		IssuedAt:           issuedAt.Unix(),
		ProducedAt:         result.ProducedAt().Unix(),
		Responder:          signer.Subject.String(),
		ResponderKeyID:     CertificateFingerprint(signer),
		SignatureAlgorithm: result.SignatureAlgorithm(),
	}
	if len(nonce) > 0 {
		c.Nonce = append([]byte(nil), nonce...)
	}

	for _, info := range result.Statuses() {
		e := Entry{
			Status:     info.Status.String(),
			ThisUpdate: info.ThisUpdate.Unix(),
		}
		if info.Serial != nil {
			e.Serial = info.Serial.Text(16)
		}
		if !info.NextUpdate.IsZero() {
			e.NextUpdate = info.NextUpdate.Unix()
		}
		if info.Status == ocsp.CertStatusRevoked {
			reason := int(info.RevocationReason)
			e.RevokedAt = info.RevocationTime.Unix()
			e.Reason = &reason
		}
		c.Entries = append(c.Entries, e)
	}
	return c, nil
}

// Validate checks that the claims are well formed.
func (c *Claims) Validate() error {
	if c.Version != ReceiptVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidReceipt, c.Version)
	}
	if c.Responder == "" {
		return fmt.Errorf("%w: responder is required", ErrInvalidReceipt)
	}
	if len(c.ResponderKeyID) == 0 {
		return fmt.Errorf("%w: responder key id is required", ErrInvalidReceipt)
	}
	for i, e := range c.Entries {
		if e.Serial == "" {
			return fmt.Errorf("%w: entry %d has no serial", ErrInvalidReceipt, i)
		}
		switch e.Status {
		case "revoked":
		case "good", "unknown":
			if e.Reason != nil || e.RevokedAt != 0 {
				return fmt.Errorf("%w: entry %s is %s but carries revocation data", ErrInvalidReceipt, e.Serial, e.Status)
			}
		default:
			return fmt.Errorf("%w: entry %s has status %q", ErrInvalidReceipt, e.Serial, e.Status)
		}
	}
	return nil
}

// EncodeClaims encodes claims as deterministic CBOR.
func EncodeClaims(c *Claims) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return canonicalEncMode.Marshal(c)
}

// DecodeClaims decodes and validates CBOR claims.
func DecodeClaims(data []byte) (*Claims, error) {
	var c Claims
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// CertificateFingerprint returns the SHA-256 hash of the certificate.
func CertificateFingerprint(cert *x509.Certificate) []byte {
	if cert == nil {
		return nil
	}
	h := sha256.Sum256(cert.Raw)
	return h[:]
}

// Issuer signs receipts with a fixed key.
type Issuer struct {
	signer gocose.Signer
	keyID  []byte
	cert   *x509.Certificate
	now    func() time.Time
}

// NewIssuer creates an issuer for key. When cert is non-nil it must hold
// key's public half; the receipt then names it by fingerprint and embeds it
// in an x5chain header. Without a certificate the key id is the SHA-256 of
// the public key's SubjectPublicKeyInfo.
func NewIssuer(key crypto.Signer, cert *x509.Certificate) (*Issuer, error) {
	signer, err := NewSigner(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE signer: %w", err)
	}

	i := &Issuer{signer: signer, cert: cert, now: time.Now}
	if cert != nil {
		i.keyID = CertificateFingerprint(cert)
		return i, nil
	}
	spki, err := pkicrypto.MarshalPublicKeyInfo(key.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	h := sha256.Sum256(spki)
	i.keyID = h[:]
	return i, nil
}

// Algorithm returns the COSE algorithm the issuer signs with.
func (i *Issuer) Algorithm() gocose.Algorithm {
	return i.signer.Algorithm()
}

// KeyID returns the key identifier placed in the protected header.
func (i *Issuer) KeyID() []byte {
	return append([]byte(nil), i.keyID...)
}

// Issue summarizes result and signs it.
func (i *Issuer) Issue(result *ocsp.ValidationResult, nonce []byte) ([]byte, error) {
	claims, err := NewClaims(result, nonce, i.now())
	if err != nil {
		return nil, err
	}
	return i.Sign(claims)
}

// Sign returns a tagged COSE_Sign1 message carrying claims.
func (i *Issuer) Sign(claims *Claims) ([]byte, error) {
	payload, err := EncodeClaims(claims)
	if err != nil {
		return nil, err
	}

	msg := gocose.NewSign1Message()
	msg.Payload = payload
	msg.Headers.Protected.SetAlgorithm(i.signer.Algorithm())
	msg.Headers.Protected[gocose.HeaderLabelContentType] = ContentType
	msg.Headers.Protected[gocose.HeaderLabelKeyID] = i.keyID
	if i.cert != nil {
		msg.Headers.Protected[headerX5Chain] = [][]byte{i.cert.Raw}
	}

	if err := msg.Sign(rand.Reader, nil, i.signer); err != nil {
		return nil, fmt.Errorf("failed to sign receipt: %w", err)
	}
	return msg.MarshalCBOR()
}

// VerifyConfig selects the key a receipt is verified against.
type VerifyConfig struct {
	// PublicKey, when set, is used directly.
	PublicKey crypto.PublicKey

	// Certificate, when set and PublicKey is nil, supplies the key.
	Certificate *x509.Certificate

	// TrustEmbedded allows the certificate carried in the receipt's x5chain
	// header to be used when no key is configured. Validator must be set and
	// must accept that certificate first; a self-asserted certificate is
	// never trusted on its own.
	TrustEmbedded bool
	Validator     ocsp.PathValidator
}

// Receipt is a verified receipt.
type Receipt struct {
	Algorithm   gocose.Algorithm
	KeyID       []byte
	Certificate *x509.Certificate
	Claims      *Claims
}

// Verify checks a receipt's signature and returns its claims.
func Verify(data []byte, config VerifyConfig) (*Receipt, error) {
	var msg gocose.Sign1Message
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if ct, ok := msg.Headers.Protected[gocose.HeaderLabelContentType].(string); !ok || ct != ContentType {
		return nil, fmt.Errorf("%w: unexpected content type", ErrInvalidReceipt)
	}

	r := &Receipt{Algorithm: alg}
	if kid, ok := msg.Headers.Protected[gocose.HeaderLabelKeyID].([]byte); ok {
		r.KeyID = kid
	}
	r.Certificate = certificateFromX5Chain(msg.Headers.Protected[headerX5Chain])

	pub, err := resolvePublicKey(r.Certificate, config)
	if err != nil {
		return nil, err
	}
	verifier, err := NewVerifier(pub)
	if err != nil {
		return nil, err
	}
	if verifier.Algorithm() != alg {
		return nil, fmt.Errorf("receipt algorithm %s does not match key algorithm %s",
			AlgorithmName(alg), AlgorithmName(verifier.Algorithm()))
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("receipt signature verification failed: %w", err)
	}

	r.Claims, err = DecodeClaims(msg.Payload)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func resolvePublicKey(embedded *x509.Certificate, config VerifyConfig) (crypto.PublicKey, error) {
	if config.PublicKey != nil {
		return config.PublicKey, nil
	}
	if config.Certificate != nil {
		return pkicrypto.PublicKeyFromCertificate(config.Certificate)
	}
	if config.TrustEmbedded && embedded != nil {
		if config.Validator == nil {
			return nil, fmt.Errorf("%w: embedded certificate requires a path validator", ErrNoVerificationKey)
		}
		if err := config.Validator.ValidatePath(embedded); err != nil {
			return nil, fmt.Errorf("receipt certificate is not trusted: %w", err)
		}
		return pkicrypto.PublicKeyFromCertificate(embedded)
	}
	return nil, ErrNoVerificationKey
}

func certificateFromX5Chain(x5chain interface{}) *x509.Certificate {
	var der []byte
	switch v := x5chain.(type) {
	case []byte:
		der = v
	case [][]byte:
		if len(v) > 0 {
			der = v[0]
		}
	case []interface{}:
		if len(v) > 0 {
			der, _ = v[0].([]byte)
		}
	}
	if der == nil {
		return nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil
	}
	return cert
}

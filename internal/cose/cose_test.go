package cose

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

// =============================================================================
// Fixtures
// =============================================================================

var fixtureProducedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSelfSigned(t *testing.T, cn string, key *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,

		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}
	return cert
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return key
}

// newValidationResult validates a response reporting serial 0x1a good,
// 0x2b revoked (keyCompromise) and 0x3c unknown.
func newValidationResult(t *testing.T, nonce []byte) *ocsp.ValidationResult {
	t.Helper()
	pkicrypto.Setup()

	key := newKey(t)
	cert := newSelfSigned(t, "Receipt Test Responder", key)

	certID := func(serial int64) *ocsp.CertID {
		id, err := ocsp.NewCertIDFromSerial(crypto.SHA1, cert, big.NewInt(serial))
		if err != nil {
			t.Fatalf("NewCertIDFromSerial() error = %v", err)
		}
		return id
	}
	thisUpdate := fixtureProducedAt.Add(-time.Minute)
	nextUpdate := fixtureProducedAt.Add(time.Hour)
	resp, err := ocsp.NewResponseBuilder(cert, key).
		SetProducedAt(fixtureProducedAt).
		AddUnknown(certID(0x3c), thisUpdate, time.Time{}).
		AddGood(certID(0x1a), thisUpdate, nextUpdate).
		AddRevoked(certID(0x2b), thisUpdate, nextUpdate, fixtureProducedAt.Add(-24*time.Hour), ocsp.ReasonKeyCompromise).
		AddNonce(nonce).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	checker, err := ocsp.NewChecker(ocsp.PathValidatorFunc(func(*x509.Certificate) error { return nil }))
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}
	result, err := checker.ValidateDER(resp, nonce)
	if err != nil {
		t.Fatalf("ValidateDER() error = %v", err)
	}
	return result
}

func newIssuer(t *testing.T, alg pkicrypto.AlgorithmID) (*Issuer, crypto.PublicKey) {
	t.Helper()
	kp, err := pkicrypto.GenerateKeyPair(alg)
	if err != nil {
		t.Fatalf("GenerateKeyPair(%s) error = %v", alg, err)
	}
	signer, ok := kp.PrivateKey.(crypto.Signer)
	if !ok {
		t.Fatalf("%T is not a crypto.Signer", kp.PrivateKey)
	}
	issuer, err := NewIssuer(signer, nil)
	if err != nil {
		t.Fatalf("NewIssuer(%s) error = %v", alg, err)
	}
	return issuer, kp.PublicKey
}

// =============================================================================
// Claims Tests
// =============================================================================

func TestU_NewClaims(t *testing.T) {
	nonce := []byte{0x01, 0x02, 0x03}
	result := newValidationResult(t, nonce)
	issuedAt := fixtureProducedAt.Add(time.Minute)

	c, err := NewClaims(result, nonce, issuedAt)
	if err != nil {
		t.Fatalf("NewClaims() error = %v", err)
	}

	if c.Version != ReceiptVersion {
		t.Errorf("Version = %d, want %d", c.Version, ReceiptVersion)
	}
	if c.IssuedAt != issuedAt.Unix() || c.ProducedAt != fixtureProducedAt.Unix() {
		t.Errorf("times = (%d, %d), want (%d, %d)", c.IssuedAt, c.ProducedAt, issuedAt.Unix(), fixtureProducedAt.Unix())
	}
	if c.Responder != "CN=Receipt Test Responder" {
		t.Errorf("Responder = %q", c.Responder)
	}
	if !bytes.Equal(c.ResponderKeyID, CertificateFingerprint(result.SignerCertificate())) {
		t.Error("ResponderKeyID is not the responder certificate fingerprint")
	}
	if !bytes.Equal(c.Nonce, nonce) {
		t.Errorf("Nonce = %x, want %x", c.Nonce, nonce)
	}
	if c.SignatureAlgorithm != "ecdsa-sha256" {
		t.Errorf("SignatureAlgorithm = %q, want ecdsa-sha256", c.SignatureAlgorithm)
	}

	if len(c.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(c.Entries))
	}
	want := []struct {
		serial string
		status string
	}{
		{"1a", "good"},
		{"2b", "revoked"},
		{"3c", "unknown"},
	}
	for i, w := range want {
		if c.Entries[i].Serial != w.serial || c.Entries[i].Status != w.status {
			t.Errorf("Entries[%d] = (%s, %s), want (%s, %s)", i, c.Entries[i].Serial, c.Entries[i].Status, w.serial, w.status)
		}
	}

	revoked := c.Entries[1]
	if revoked.Reason == nil || *revoked.Reason != int(ocsp.ReasonKeyCompromise) {
		t.Errorf("revoked Reason = %v, want %d", revoked.Reason, ocsp.ReasonKeyCompromise)
	}
	if revoked.RevokedAt != fixtureProducedAt.Add(-24*time.Hour).Unix() {
		t.Errorf("revoked RevokedAt = %d", revoked.RevokedAt)
	}
	if c.Entries[0].Reason != nil || c.Entries[0].RevokedAt != 0 {
		t.Error("good entry carries revocation data")
	}
	if c.Entries[2].NextUpdate != 0 {
		t.Errorf("unknown entry NextUpdate = %d, want 0", c.Entries[2].NextUpdate)
	}
}

func TestU_NewClaims_NoNonce(t *testing.T) {
	c, err := NewClaims(newValidationResult(t, []byte{0x09}), nil, time.Now())
	if err != nil {
		t.Fatalf("NewClaims() error = %v", err)
	}
	if c.Nonce != nil {
		t.Errorf("Nonce = %x, want nil", c.Nonce)
	}
}

func TestU_NewClaims_NilResult(t *testing.T) {
	if _, err := NewClaims(nil, nil, time.Now()); err == nil {
		t.Error("NewClaims(nil) should fail")
	}
}

func TestU_Claims_Validate(t *testing.T) {
	reason := 1
	valid := func() *Claims {
		return &Claims{
			Version:        ReceiptVersion,
			Responder:      "CN=Responder",
			ResponderKeyID: []byte{0x01},
			Entries:        []Entry{{Serial: "1", Status: "good"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Claims)
		ok     bool
	}{
		{"[Unit] Validate: valid claims", func(c *Claims) {}, true},
		{"[Unit] Validate: no entries", func(c *Claims) { c.Entries = nil }, true},
		{"[Unit] Validate: revoked with reason", func(c *Claims) {
			c.Entries[0] = Entry{Serial: "1", Status: "revoked", RevokedAt: 10, Reason: &reason}
		}, true},
		{"[Unit] Validate: wrong version", func(c *Claims) { c.Version = 2 }, false},
		{"[Unit] Validate: missing responder", func(c *Claims) { c.Responder = "" }, false},
		{"[Unit] Validate: missing key id", func(c *Claims) { c.ResponderKeyID = nil }, false},
		{"[Unit] Validate: missing serial", func(c *Claims) { c.Entries[0].Serial = "" }, false},
		{"[Unit] Validate: bad status", func(c *Claims) { c.Entries[0].Status = "expired" }, false},
		{"[Unit] Validate: good with reason", func(c *Claims) { c.Entries[0].Reason = &reason }, false},
		{"[Unit] Validate: unknown with revocation time", func(c *Claims) {
			c.Entries[0] = Entry{Serial: "1", Status: "unknown", RevokedAt: 10}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidReceipt) {
				t.Errorf("Validate() error = %v, want ErrInvalidReceipt", err)
			}
		})
	}
}

func TestU_EncodeClaims_Deterministic(t *testing.T) {
	c, err := NewClaims(newValidationResult(t, []byte{0x01}), []byte{0x01}, fixtureProducedAt)
	if err != nil {
		t.Fatalf("NewClaims() error = %v", err)
	}

	first, err := EncodeClaims(c)
	if err != nil {
		t.Fatalf("EncodeClaims() error = %v", err)
	}
	second, err := EncodeClaims(c)
	if err != nil {
		t.Fatalf("EncodeClaims() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("EncodeClaims() is not deterministic")
	}

	decoded, err := DecodeClaims(first)
	if err != nil {
		t.Fatalf("DecodeClaims() error = %v", err)
	}
	if decoded.Responder != c.Responder || len(decoded.Entries) != len(c.Entries) {
		t.Errorf("DecodeClaims() = %+v, want %+v", decoded, c)
	}
	if decoded.Entries[1].Reason == nil || *decoded.Entries[1].Reason != *c.Entries[1].Reason {
		t.Error("DecodeClaims() lost the revocation reason")
	}
}

func TestU_EncodeClaims_Invalid(t *testing.T) {
	if _, err := EncodeClaims(&Claims{}); !errors.Is(err, ErrInvalidReceipt) {
		t.Errorf("EncodeClaims() error = %v, want ErrInvalidReceipt", err)
	}
}

func TestU_DecodeClaims_Garbage(t *testing.T) {
	if _, err := DecodeClaims([]byte{0xff, 0x00}); !errors.Is(err, ErrInvalidReceipt) {
		t.Errorf("DecodeClaims() error = %v, want ErrInvalidReceipt", err)
	}
}

// =============================================================================
// Sign / Verify Tests
// =============================================================================

func TestU_Issuer_SignVerify(t *testing.T) {
	tests := []struct {
		alg  pkicrypto.AlgorithmID
		want gocose.Algorithm
	}{
		{pkicrypto.AlgECDSASHA256, AlgES256},
		{pkicrypto.AlgECDSASHA384, AlgES384},
		{pkicrypto.AlgECDSASHA512, AlgES512},
		{pkicrypto.AlgEd25519, AlgEdDSA},
		{pkicrypto.AlgEd448, AlgEdDSA},
		{pkicrypto.AlgRSASHA256, AlgPS256},
		{pkicrypto.AlgMLDSA44, AlgMLDSA44},
		{pkicrypto.AlgMLDSA65, AlgMLDSA65},
		{pkicrypto.AlgMLDSA87, AlgMLDSA87},
		{pkicrypto.AlgSLHDSA128f, AlgSLHDSASHA2128f},
	}

	nonce := []byte{0xCA, 0xFE}
	result := newValidationResult(t, nonce)

	for _, tt := range tests {
		t.Run("[Unit] SignVerify: "+tt.alg.String(), func(t *testing.T) {
			issuer, pub := newIssuer(t, tt.alg)
			if issuer.Algorithm() != tt.want {
				t.Errorf("Algorithm() = %s, want %s", AlgorithmName(issuer.Algorithm()), AlgorithmName(tt.want))
			}

			raw, err := issuer.Issue(result, nonce)
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}

			receipt, err := Verify(raw, VerifyConfig{PublicKey: pub})
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if receipt.Algorithm != tt.want {
				t.Errorf("receipt Algorithm = %d, want %d", receipt.Algorithm, tt.want)
			}
			if !bytes.Equal(receipt.KeyID, issuer.KeyID()) {
				t.Error("receipt KeyID does not match issuer")
			}
			if receipt.Certificate != nil {
				t.Error("receipt without certificate should not carry x5chain")
			}
			if len(receipt.Claims.Entries) != 3 || !bytes.Equal(receipt.Claims.Nonce, nonce) {
				t.Errorf("receipt Claims = %+v", receipt.Claims)
			}
		})
	}
}

func TestU_Verify_SLHDSAValuePublicKey(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgSLHDSA128f)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	signer := kp.PrivateKey.(crypto.Signer)
	issuer, err := NewIssuer(signer, nil)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	nonce := []byte{0x5A}
	raw, err := issuer.Issue(newValidationResult(t, nonce), nonce)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	// signer.Public() yields the key by value.
	if _, err := Verify(raw, VerifyConfig{PublicKey: signer.Public()}); err != nil {
		t.Errorf("Verify() with value public key error = %v", err)
	}
}

func TestU_Verify_WrongKey(t *testing.T) {
	result := newValidationResult(t, []byte{0x01})

	t.Run("[Unit] Verify: same algorithm, other key", func(t *testing.T) {
		issuer, _ := newIssuer(t, pkicrypto.AlgMLDSA44)
		_, other := newIssuer(t, pkicrypto.AlgMLDSA44)
		raw, err := issuer.Issue(result, []byte{0x01})
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := Verify(raw, VerifyConfig{PublicKey: other}); err == nil {
			t.Error("Verify() with another key should fail")
		}
	})

	t.Run("[Unit] Verify: classical other key", func(t *testing.T) {
		issuer, _ := newIssuer(t, pkicrypto.AlgECDSASHA256)
		_, other := newIssuer(t, pkicrypto.AlgECDSASHA256)
		raw, err := issuer.Issue(result, []byte{0x01})
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := Verify(raw, VerifyConfig{PublicKey: other}); err == nil {
			t.Error("Verify() with another key should fail")
		}
	})

	t.Run("[Unit] Verify: algorithm mismatch", func(t *testing.T) {
		issuer, _ := newIssuer(t, pkicrypto.AlgECDSASHA256)
		_, other := newIssuer(t, pkicrypto.AlgEd25519)
		raw, err := issuer.Issue(result, []byte{0x01})
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		_, err = Verify(raw, VerifyConfig{PublicKey: other})
		if err == nil || !strings.Contains(err.Error(), "does not match") {
			t.Errorf("Verify() error = %v, want algorithm mismatch", err)
		}
	})
}

func TestU_Verify_Tampered(t *testing.T) {
	issuer, pub := newIssuer(t, pkicrypto.AlgEd25519)
	raw, err := issuer.Issue(newValidationResult(t, []byte{0x01}), []byte{0x01})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := Verify(tampered, VerifyConfig{PublicKey: pub}); err == nil {
		t.Error("Verify() of a tampered receipt should fail")
	}
}

func TestU_Verify_Garbage(t *testing.T) {
	_, err := Verify([]byte("not a receipt"), VerifyConfig{})
	if !errors.Is(err, ErrInvalidReceipt) {
		t.Errorf("Verify() error = %v, want ErrInvalidReceipt", err)
	}
}

func TestU_Verify_WrongContentType(t *testing.T) {
	key := newKey(t)
	signer, err := gocose.NewSigner(gocose.AlgorithmES256, key)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	msg := gocose.NewSign1Message()
	msg.Payload = []byte("payload")
	msg.Headers.Protected.SetAlgorithm(gocose.AlgorithmES256)
	msg.Headers.Protected[gocose.HeaderLabelContentType] = "text/plain"
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	raw, err := msg.MarshalCBOR()
	if err != nil {
		t.Fatalf("MarshalCBOR() error = %v", err)
	}

	_, err = Verify(raw, VerifyConfig{PublicKey: key.Public()})
	if !errors.Is(err, ErrInvalidReceipt) {
		t.Errorf("Verify() error = %v, want ErrInvalidReceipt", err)
	}
}

func TestU_Verify_EmbeddedCertificate(t *testing.T) {
	key := newKey(t)
	cert := newSelfSigned(t, "Receipt Issuer", key)
	issuer, err := NewIssuer(key, cert)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	if !bytes.Equal(issuer.KeyID(), CertificateFingerprint(cert)) {
		t.Error("KeyID() should be the certificate fingerprint")
	}

	raw, err := issuer.Issue(newValidationResult(t, []byte{0x01}), []byte{0x01})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	t.Run("[Unit] Verify: no key configured", func(t *testing.T) {
		if _, err := Verify(raw, VerifyConfig{}); !errors.Is(err, ErrNoVerificationKey) {
			t.Errorf("Verify() error = %v, want ErrNoVerificationKey", err)
		}
	})

	t.Run("[Unit] Verify: configured certificate", func(t *testing.T) {
		receipt, err := Verify(raw, VerifyConfig{Certificate: cert})
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if receipt.Certificate == nil || !receipt.Certificate.Equal(cert) {
			t.Error("receipt should carry the issuer certificate")
		}
	})

	t.Run("[Unit] Verify: trusted embedded certificate", func(t *testing.T) {
		calls := 0
		validator := ocsp.PathValidatorFunc(func(c *x509.Certificate) error {
			calls++
			return nil
		})
		if _, err := Verify(raw, VerifyConfig{TrustEmbedded: true, Validator: validator}); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if calls != 1 {
			t.Errorf("validator called %d times, want 1", calls)
		}
	})

	t.Run("[Unit] Verify: embedded certificate without validator", func(t *testing.T) {
		_, err := Verify(raw, VerifyConfig{TrustEmbedded: true})
		if !errors.Is(err, ErrNoVerificationKey) {
			t.Errorf("Verify() error = %v, want ErrNoVerificationKey", err)
		}
	})

	t.Run("[Unit] Verify: rejected embedded certificate", func(t *testing.T) {
		errUntrusted := errors.New("untrusted")
		validator := ocsp.PathValidatorFunc(func(*x509.Certificate) error { return errUntrusted })
		_, err := Verify(raw, VerifyConfig{TrustEmbedded: true, Validator: validator})
		if !errors.Is(err, errUntrusted) {
			t.Errorf("Verify() error = %v, want %v", err, errUntrusted)
		}
	})
}

func TestU_NewIssuer_Errors(t *testing.T) {
	if _, err := NewIssuer(nil, nil); err == nil {
		t.Error("NewIssuer(nil) should fail")
	}

	key, err := ecdsa.GenerateKey(elliptic.P224(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if _, err := NewIssuer(key, nil); err == nil {
		t.Error("NewIssuer() with a P-224 key should fail")
	}
}

// =============================================================================
// Algorithm Tests
// =============================================================================

func TestU_AlgorithmName(t *testing.T) {
	tests := []struct {
		alg  gocose.Algorithm
		name string
		pqc  bool
	}{
		{AlgES256, "ES256", false},
		{AlgEdDSA, "EdDSA", false},
		{AlgPS256, "PS256", false},
		{AlgMLDSA65, "ML-DSA-65", true},
		{AlgSLHDSASHA2256s, "SLH-DSA-SHA2-256s", true},
		{gocose.Algorithm(-9999), "Unknown(-9999)", false},
	}
	for _, tt := range tests {
		if got := AlgorithmName(tt.alg); got != tt.name {
			t.Errorf("AlgorithmName(%d) = %q, want %q", tt.alg, got, tt.name)
		}
		if got := IsPQCAlgorithm(tt.alg); got != tt.pqc {
			t.Errorf("IsPQCAlgorithm(%d) = %v, want %v", tt.alg, got, tt.pqc)
		}
	}
}

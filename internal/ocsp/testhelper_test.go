package ocsp

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

func init() {
	pkicrypto.Setup()
}

// testPKI is a CA plus an OCSP responder certificate issued by it.
type testPKI struct {
	caCert        *x509.Certificate
	caKey         crypto.Signer
	responderCert *x509.Certificate
	responderKey  crypto.Signer
}

// newTestPKI creates an ECDSA P-256 CA and responder.
func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	caCert, caKey := generateTestCA(t)
	kp := generateECDSAKeyPair(t)
	return &testPKI{
		caCert:        caCert,
		caKey:         caKey,
		responderCert: generateOCSPResponderCert(t, caCert, caKey, kp.Public(), time.Now().Add(24*time.Hour)),
		responderKey:  kp,
	}
}

// pathValidator verifies the responder chain against the test CA.
func (p *testPKI) pathValidator() PathValidator {
	roots := x509.NewCertPool()
	roots.AddCert(p.caCert)
	return PathValidatorFunc(func(cert *x509.Certificate) error {
		_, err := cert.Verify(x509.VerifyOptions{
			Roots:     roots,
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning},
		})
		return err
	})
}

// certID returns a SHA-1 CertID for serial under the test CA.
func (p *testPKI) certID(t *testing.T, serial int64) *CertID {
	t.Helper()
	id, err := NewCertIDFromSerial(crypto.SHA1, p.caCert, big.NewInt(serial))
	if err != nil {
		t.Fatalf("NewCertIDFromSerial failed: %v", err)
	}
	return id
}

// builder returns a response builder signed by the responder.
func (p *testPKI) builder() *ResponseBuilder {
	return NewResponseBuilder(p.responderCert, p.responderKey)
}

// goodResponse builds a signed response with one good entry for serial and
// the given nonce.
func (p *testPKI) goodResponse(t *testing.T, serial int64, nonce []byte) []byte {
	t.Helper()
	now := time.Now().Truncate(time.Second)
	der, err := p.builder().
		AddGood(p.certID(t, serial), now, now.Add(time.Hour)).
		AddNonce(nonce).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return der
}

func generateECDSAKeyPair(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ECDSA key: %v", err)
	}
	return priv
}

func randomSerial(t *testing.T) *big.Int {
	t.Helper()
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("Failed to generate serial number: %v", err)
	}
	return serialNumber
}

// generateTestCA creates a test CA certificate and key pair.
func generateTestCA(t *testing.T) (*x509.Certificate, crypto.Signer) {
	t.Helper()

	priv := generateECDSAKeyPair(t)
	template := &x509.Certificate{
		SerialNumber: randomSerial(t),
		Subject: pkix.Name{
			CommonName:   "Test CA",
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, priv.Public(), priv)
	if err != nil {
		t.Fatalf("Failed to create CA certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("Failed to parse CA certificate: %v", err)
	}
	return cert, priv
}

// generateOCSPResponderCert creates an OCSP responder certificate.
func generateOCSPResponderCert(t *testing.T, caCert *x509.Certificate, caKey crypto.Signer, pub crypto.PublicKey, notAfter time.Time) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: randomSerial(t),
		Subject: pkix.Name{
			CommonName:   "Test OCSP Responder",
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, pub, caKey)
	if err != nil {
		t.Fatalf("Failed to create OCSP responder certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("Failed to parse OCSP responder certificate: %v", err)
	}
	return cert
}

// =============================================================================
// PQC Test Helpers
// =============================================================================

// generatePQCResponderCert creates an OCSP responder certificate holding a
// key the standard library cannot marshal (ML-DSA, SLH-DSA, Ed448). The
// certificate is built by hand and signed by the classical test CA, so the
// chain still verifies with x509.Certificate.Verify.
func generatePQCResponderCert(t *testing.T, caCert *x509.Certificate, caKey *ecdsa.PrivateKey, pub crypto.PublicKey) *x509.Certificate {
	t.Helper()

	spkiBytes, err := pkicrypto.MarshalPublicKeyInfo(pub)
	if err != nil {
		t.Fatalf("Failed to marshal SPKI: %v", err)
	}

	ekuValue, err := asn1.Marshal([]asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 9}})
	if err != nil {
		t.Fatalf("Failed to marshal EKU: %v", err)
	}

	subject, err := asn1.Marshal(pkix.Name{CommonName: "Test PQC OCSP Responder"}.ToRDNSequence())
	if err != nil {
		t.Fatalf("Failed to marshal subject: %v", err)
	}

	sigAlg := pkix.AlgorithmIdentifier{Algorithm: pkicrypto.AlgECDSASHA256.OID()}

	tbs := struct {
		Version            int `asn1:"optional,explicit,default:0,tag:0"`
		SerialNumber       *big.Int
		SignatureAlgorithm pkix.AlgorithmIdentifier
		Issuer             asn1.RawValue
		Validity           struct {
			NotBefore, NotAfter time.Time
		}
		Subject              asn1.RawValue
		SubjectPublicKeyInfo asn1.RawValue
		Extensions           []pkix.Extension `asn1:"optional,explicit,tag:3"`
	}{
		Version:            2, // v3
		SerialNumber:       randomSerial(t),
		SignatureAlgorithm: sigAlg,
		Issuer:             asn1.RawValue{FullBytes: caCert.RawSubject},
		Validity: struct {
			NotBefore, NotAfter time.Time
		}{
			NotBefore: time.Now().Add(-1 * time.Hour).UTC(),
			NotAfter:  time.Now().Add(24 * time.Hour).UTC(),
		},
		Subject:              asn1.RawValue{FullBytes: subject},
		SubjectPublicKeyInfo: asn1.RawValue{FullBytes: spkiBytes},
		Extensions: []pkix.Extension{
			{Id: asn1.ObjectIdentifier{2, 5, 29, 37}, Value: ekuValue},
		},
	}

	tbsBytes, err := asn1.Marshal(tbs)
	if err != nil {
		t.Fatalf("Failed to marshal TBSCertificate: %v", err)
	}

	_, signature, err := pkicrypto.SignMessage(rand.Reader, caKey, tbsBytes)
	if err != nil {
		t.Fatalf("Failed to sign TBSCertificate: %v", err)
	}

	certDER, err := asn1.Marshal(struct {
		TBSCertificate     asn1.RawValue
		SignatureAlgorithm pkix.AlgorithmIdentifier
		SignatureValue     asn1.BitString
	}{
		TBSCertificate:     asn1.RawValue{FullBytes: tbsBytes},
		SignatureAlgorithm: sigAlg,
		SignatureValue:     asn1.BitString{Bytes: signature, BitLength: len(signature) * 8},
	})
	if err != nil {
		t.Fatalf("Failed to marshal certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert
}

// =============================================================================
// Collaborator Doubles
// =============================================================================

// countingPaths accepts or rejects every certificate and counts calls.
type countingPaths struct {
	err   error
	calls atomic.Int32
}

func (p *countingPaths) ValidatePath(*x509.Certificate) error {
	p.calls.Add(1)
	return p.err
}

// countingVerifier returns a fixed outcome and counts calls.
type countingVerifier struct {
	ok    bool
	err   error
	calls atomic.Int32
}

func (v *countingVerifier) VerifySignature(*BasicResponse, crypto.PublicKey) (bool, error) {
	v.calls.Add(1)
	return v.ok, v.err
}

// newTestChecker creates a Checker or fails the test.
func newTestChecker(t *testing.T, paths PathValidator, opts ...Option) *Checker {
	t.Helper()
	c, err := NewChecker(paths, opts...)
	if err != nil {
		t.Fatalf("NewChecker failed: %v", err)
	}
	return c
}

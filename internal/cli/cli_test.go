package cli

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/remiblancher/ocspcheck/internal/api/dto"
	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
)

// =============================================================================
// Fixtures
// =============================================================================

func newSigningCert(t *testing.T) (*ecdsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(5),
		Subject:               pkix.Name{CommonName: "CLI Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:                  true,
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
	return key, cert
}

func acceptAll(*x509.Certificate) error { return nil }

func validate(t *testing.T, der, nonce []byte) (*ocsp.ValidationResult, error) {
	t.Helper()
	pkicrypto.Setup()
	checker, err := ocsp.NewChecker(ocsp.PathValidatorFunc(acceptAll))
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}
	return checker.ValidateDER(der, nonce)
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestU_ParseOCSPSerial(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{"[Unit] plain", "0a1b", 0x0a1b, false},
		{"[Unit] colons", "0A:1B", 0x0a1b, false},
		{"[Unit] empty", "", 0, true},
		{"[Unit] not hex", "zz", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOCSPSerial(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOCSPSerial(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got.Int64() != tt.want {
				t.Errorf("ParseOCSPSerial(%q) = %s", tt.in, got)
			}
		})
	}
}

func TestU_ParseOCSPCertStatus(t *testing.T) {
	for in, want := range map[string]ocsp.CertStatus{
		"good":    ocsp.CertStatusGood,
		"REVOKED": ocsp.CertStatusRevoked,
		"unknown": ocsp.CertStatusUnknown,
	} {
		got, err := ParseOCSPCertStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseOCSPCertStatus(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseOCSPCertStatus("fine"); err == nil {
		t.Error("ParseOCSPCertStatus(fine) should fail")
	}
}

func TestU_ParseResponseStatus(t *testing.T) {
	got, err := ParseResponseStatus("tryLater")
	if err != nil || got != ocsp.StatusTryLater {
		t.Errorf("ParseResponseStatus(tryLater) = %v, %v", got, err)
	}
	if _, err := ParseResponseStatus("successful"); err == nil {
		t.Error("ParseResponseStatus(successful) should fail")
	}
}

func TestU_ParseOCSPRevocationTime(t *testing.T) {
	got, err := ParseOCSPRevocationTime("2026-01-02T03:04:05Z")
	if err != nil || !got.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("ParseOCSPRevocationTime() = %v, %v", got, err)
	}
	if _, err := ParseOCSPRevocationTime("yesterday"); err == nil {
		t.Error("ParseOCSPRevocationTime(yesterday) should fail")
	}
}

func TestU_FormatStatus(t *testing.T) {
	if got := FormatStatus("good", false); got != "good" {
		t.Errorf("FormatStatus(good, false) = %q", got)
	}
	if got := FormatStatus("revoked", true); got != ColorRed+"revoked"+ColorReset {
		t.Errorf("FormatStatus(revoked, true) = %q", got)
	}
}

// =============================================================================
// Build Tests
// =============================================================================

func TestU_BuildOCSPSignResponse(t *testing.T) {
	key, cert := newSigningCert(t)
	nonce := []byte{1, 2, 3}

	t.Run("[Unit] revoked with reason", func(t *testing.T) {
		der, err := BuildOCSPSignResponse(&OCSPSignParams{
			Serials:          []*big.Int{big.NewInt(0x10), big.NewInt(0x20)},
			CertStatus:       ocsp.CertStatusRevoked,
			RevocationTime:   time.Now().Add(-time.Hour),
			RevocationReason: ocsp.ReasonKeyCompromise,
			HasReason:        true,
			CACert:           cert,
			ResponderCert:    cert,
			Signer:           key,
			Validity:         time.Hour,
			Nonce:            nonce,
		})
		if err != nil {
			t.Fatalf("BuildOCSPSignResponse() error = %v", err)
		}
		result, err := validate(t, der, nonce)
		if err != nil {
			t.Fatalf("ValidateDER() error = %v", err)
		}
		if result.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", result.Len())
		}
		info, ok := result.Status(big.NewInt(0x20))
		if !ok || info.Status != ocsp.CertStatusRevoked || info.RevocationReason != ocsp.ReasonKeyCompromise {
			t.Errorf("Status(0x20) = %+v, %v", info, ok)
		}
	})

	t.Run("[Unit] without nonce", func(t *testing.T) {
		der, err := BuildOCSPSignResponse(&OCSPSignParams{
			Serials:       []*big.Int{big.NewInt(1)},
			CertStatus:    ocsp.CertStatusGood,
			CACert:        cert,
			ResponderCert: cert,
			Signer:        key,
		})
		if err != nil {
			t.Fatalf("BuildOCSPSignResponse() error = %v", err)
		}
		if _, err := validate(t, der, nonce); ocsp.KindOf(err) != ocsp.KindNonceMissing {
			t.Errorf("ValidateDER() error = %v, want NONCE_MISSING", err)
		}
	})

	t.Run("[Unit] no serials", func(t *testing.T) {
		if _, err := BuildOCSPSignResponse(&OCSPSignParams{CACert: cert, ResponderCert: cert, Signer: key}); err == nil {
			t.Error("BuildOCSPSignResponse() without serials should fail")
		}
	})
}

// =============================================================================
// Print Tests
// =============================================================================

func TestU_PrintValidation(t *testing.T) {
	code := 1
	var buf bytes.Buffer
	PrintValidation(&buf, &dto.OCSPValidateResponse{
		Valid:              true,
		ProducedAt:         "2026-03-01T12:00:00Z",
		SignatureAlgorithm: "ecdsa-p256",
		Responder:          &dto.OCSPResponderInfo{Name: "CN=Responder"},
		Statuses: []dto.OCSPStatus{
			{Serial: "1a", Status: "good", ThisUpdate: "2026-03-01T12:00:00Z"},
			{Serial: "2b", Status: "revoked", RevokedAt: "2026-02-01T00:00:00Z", RevocationReason: "keyCompromise", RevocationReasonCode: &code},
		},
	}, false)

	out := buf.String()
	for _, want := range []string{"valid", "CN=Responder", "Statuses (2)", "2b", "keyCompromise"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestU_PrintValidationError(t *testing.T) {
	var buf bytes.Buffer
	PrintValidationError(&buf, &ocsp.ValidationError{
		Kind:     ocsp.ErrNonceMismatch,
		Expected: []byte{0xaa},
		Received: []byte{0xbb},
	}, false)

	out := buf.String()
	for _, want := range []string{"invalid", "NONCE_MISMATCH", "expected_nonce: aa", "received_nonce: bb"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// =============================================================================
// File Tests
// =============================================================================

func TestU_LoadSignerAndCert(t *testing.T) {
	key, cert := newSigningCert(t)
	dir := t.TempDir()

	block, err := pkicrypto.EncodePrivateKeyPEM(key)
	if err != nil {
		t.Fatalf("EncodePrivateKeyPEM() error = %v", err)
	}
	keyPath := filepath.Join(dir, "key.pem")
	if err := WriteOutput(keyPath, pem.EncodeToMemory(block)); err != nil {
		t.Fatalf("WriteOutput() error = %v", err)
	}
	certPath := filepath.Join(dir, "cert.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	signer, err := LoadSigner(keyPath)
	if err != nil {
		t.Fatalf("LoadSigner() error = %v", err)
	}
	if !key.PublicKey.Equal(signer.Public()) {
		t.Error("LoadSigner() returned a different key")
	}

	loaded, err := LoadCertFromPath(certPath)
	if err != nil {
		t.Fatalf("LoadCertFromPath() error = %v", err)
	}
	if !loaded.Equal(cert) {
		t.Error("LoadCertFromPath() returned a different certificate")
	}

	if _, err := LoadSigner(""); err == nil {
		t.Error("LoadSigner(\"\") should fail")
	}
	if _, err := LoadCertFromPath(filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("LoadCertFromPath(missing) should fail")
	}
}

package main

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/ocspcheck/internal/audit"
	"github.com/remiblancher/ocspcheck/internal/config"
	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

// executeCommand executes a Cobra command with the given args and returns
// stdout. Log output goes to stderr and is dropped.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	output, _, err = executeCommandWithStderr(root, args...)
	return output, err
}

// executeCommandWithStderr executes a Cobra command and returns stdout and
// stderr separately.
func executeCommandWithStderr(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	root.SetOut(outBuf)
	root.SetErr(errBuf)
	root.SetArgs(args)

	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// testContext holds test resources.
type testContext struct {
	t       *testing.T
	tempDir string
}

// newTestContext creates a test context with a temp directory and resets
// every command flag, since Cobra retains flag values between runs.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvAuditLog, "")
	resetFlags()
	t.Cleanup(func() { _ = audit.Close() })
	return &testContext{t: t, tempDir: t.TempDir()}
}

// path returns a path within the temp directory.
func (tc *testContext) path(name string) string {
	return filepath.Join(tc.tempDir, name)
}

// writeFile writes content to a file in the temp directory.
func (tc *testContext) writeFile(name, content string) string {
	tc.t.Helper()
	path := tc.path(name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		tc.t.Fatalf("Failed to write file %s: %v", name, err)
	}
	return path
}

// writeCertPEM writes a certificate to a PEM file.
func (tc *testContext) writeCertPEM(name string, cert *x509.Certificate) string {
	tc.t.Helper()
	return tc.writeFile(name, string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})))
}

// writeKeyPEM writes a private key to a PEM file.
func (tc *testContext) writeKeyPEM(name string, key crypto.PrivateKey) string {
	tc.t.Helper()
	block, err := pkicrypto.EncodePrivateKeyPEM(key)
	if err != nil {
		tc.t.Fatalf("Failed to encode key: %v", err)
	}
	path := tc.path(name)
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		tc.t.Fatalf("Failed to write key: %v", err)
	}
	return path
}

// resetFlags resets all flags to their default values.
func resetFlags() {
	configPath = ""
	auditLogPath = ""
	logLevel = ""

	validateNonce = ""
	validateRoots = ""
	validateIntermediates = ""
	validateRequireOCSPEKU = false
	validateRejectDuplicates = false
	validateReceiptKey = ""
	validateReceiptCert = ""
	validateReceiptOut = ""
	validateJSON = false

	signSerials = nil
	signStatus = "good"
	signRevocationTime = ""
	signRevocationReason = ""
	signCA = ""
	signCert = ""
	signKey = ""
	signNonce = ""
	signValidity = time.Hour
	signByName = false
	signErrorStatus = ""
	signOutput = ""

	receiptKeygenAlgorithm = string(pkicrypto.AlgMLDSA65)
	receiptKeygenOut = ""
	receiptKeygenPubOut = ""
	receiptVerifyPubKey = ""
	receiptVerifyCert = ""
	receiptVerifyTrustEmbedded = false
	receiptVerifyRoots = ""
	receiptVerifyNonce = ""
	receiptVerifyJSON = false

	auditLogFile = ""
	auditTailNum = 10
	auditShowJSON = false
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertError fails the test if err is nil.
func assertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// assertFileNotEmpty verifies that a file exists and is not empty.
func assertFileNotEmpty(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if len(data) == 0 {
		t.Errorf("file %s is empty", path)
	}
}

// =============================================================================
// PKI Fixtures
// =============================================================================

// pkiFiles are the PEM files of a CA and a delegated OCSP responder.
type pkiFiles struct {
	caCert        string
	caKey         string
	responderCert string
	responderKey  string
}

// setupPKI writes a self-signed CA and a responder certificate it issued
// with the OCSPSigning EKU.
func (tc *testContext) setupPKI() pkiFiles {
	tc.t.Helper()

	caKey := generateECDSAKey(tc.t)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "CLI Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caCert := createCertificate(tc.t, caTemplate, caTemplate, &caKey.PublicKey, caKey)

	responderKey := generateECDSAKey(tc.t)
	responderTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "CLI Test Responder"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning},
	}
	responderCert := createCertificate(tc.t, responderTemplate, caCert, &responderKey.PublicKey, caKey)

	return pkiFiles{
		caCert:        tc.writeCertPEM("ca.crt", caCert),
		caKey:         tc.writeKeyPEM("ca.key", caKey),
		responderCert: tc.writeCertPEM("responder.crt", responderCert),
		responderKey:  tc.writeKeyPEM("responder.key", responderKey),
	}
}

func generateECDSAKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ECDSA key: %v", err)
	}
	return priv
}

func createCertificate(t *testing.T, template, parent *x509.Certificate, pub crypto.PublicKey, priv crypto.Signer) *x509.Certificate {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, priv)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert
}

// signResponse runs the sign command and returns the response path.
func (tc *testContext) signResponse(p pkiFiles, name string, extra ...string) string {
	tc.t.Helper()
	out := tc.path(name)
	args := append([]string{"sign",
		"--ca", p.caCert,
		"--cert", p.responderCert,
		"--key", p.responderKey,
		"--out", out,
	}, extra...)
	if _, err := executeCommand(rootCmd, args...); err != nil {
		tc.t.Fatalf("sign failed: %v", err)
	}
	resetFlags()
	return out
}

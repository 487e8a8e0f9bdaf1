package main

import (
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"github.com/remiblancher/ocspcheck/internal/cli"
	"github.com/remiblancher/ocspcheck/internal/config"
	"github.com/remiblancher/ocspcheck/internal/cose"
	"github.com/remiblancher/ocspcheck/internal/ocsp"
	"github.com/remiblancher/ocspcheck/internal/trust"
)

// loadStaticRepository reads the trust store once.
func loadStaticRepository(tc config.TrustConfig) (*trust.StaticRepository, error) {
	if tc.Roots == "" {
		return nil, fmt.Errorf("--roots is required (or trust.roots in the config file)")
	}
	roots, err := trust.LoadCertificates(tc.Roots)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust anchors: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", tc.Roots)
	}
	inter, err := trust.LoadCertificates(tc.Intermediates)
	if err != nil {
		return nil, fmt.Errorf("failed to load intermediates: %w", err)
	}
	return trust.NewStaticRepository(roots, inter), nil
}

// newChecker builds a checker over repo using the validation settings.
func newChecker(repo trust.Repository, tc config.TrustConfig, vc config.ValidationConfig) (*ocsp.Checker, error) {
	validator := &trust.PathValidator{
		Repository:         repo,
		RequireOCSPSigning: tc.RequireOCSPSigning,
	}
	var opts []ocsp.Option
	if vc.RejectDuplicateSerials {
		opts = append(opts, ocsp.WithRejectDuplicateSerials())
	}
	return ocsp.NewChecker(validator, opts...)
}

// newReceiptIssuer returns nil when no receipt key is configured.
func newReceiptIssuer(rc config.ReceiptConfig) (*cose.Issuer, error) {
	if rc.Key == "" {
		return nil, nil
	}
	signer, err := cli.LoadSigner(rc.Key)
	if err != nil {
		return nil, fmt.Errorf("receipt key: %w", err)
	}
	var cert *x509.Certificate
	if rc.Certificate != "" {
		cert, err = cli.LoadCertFromPath(rc.Certificate)
		if err != nil {
			return nil, fmt.Errorf("receipt certificate: %w", err)
		}
	}
	issuer, err := cose.NewIssuer(signer, cert)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt issuer: %w", err)
	}
	return issuer, nil
}

// isTerminal reports whether w is a character device, so colors are only
// written to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

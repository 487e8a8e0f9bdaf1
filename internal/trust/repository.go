// Package trust supplies the certificates that OCSP responder certificates
// are validated against, and the path validator that checks them.
package trust

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoCertificates is returned when a trust source holds no certificates.
var ErrNoCertificates = errors.New("no certificates found")

// Repository supplies trust anchors and untrusted intermediates.
// Implementations must be safe for concurrent use and must not let callers
// mutate their internal state through the returned slices.
type Repository interface {
	TrustedCertificates() []*x509.Certificate
	IntermediateCertificates() []*x509.Certificate
}

// StaticRepository is a fixed, in-memory Repository.
type StaticRepository struct {
	trusted       []*x509.Certificate
	intermediates []*x509.Certificate
}

var _ Repository = (*StaticRepository)(nil)

// NewStaticRepository creates a repository over copies of the given slices.
func NewStaticRepository(trusted, intermediates []*x509.Certificate) *StaticRepository {
	return &StaticRepository{
		trusted:       append([]*x509.Certificate(nil), trusted...),
		intermediates: append([]*x509.Certificate(nil), intermediates...),
	}
}

func (r *StaticRepository) TrustedCertificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), r.trusted...)
}

func (r *StaticRepository) IntermediateCertificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), r.intermediates...)
}

// certExtensions are the file extensions read when loading a directory.
var certExtensions = map[string]bool{
	".pem": true,
	".crt": true,
	".cer": true,
	".der": true,
}

// LoadCertificates reads certificates from path. A file may hold any number
// of PEM CERTIFICATE blocks or a single DER certificate. A directory is read
// non-recursively, in name order, taking files with a .pem, .crt, .cer or
// .der extension. An empty path yields no certificates.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	if path == "" {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return loadCertificateFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && certExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var certs []*x509.Certificate
	for _, name := range names {
		fileCerts, err := loadCertificateFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		certs = append(certs, fileCerts...)
	}
	return certs, nil
}

func loadCertificateFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	certs, err := ParseCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return certs, nil
}

// ParseCertificates parses PEM data holding CERTIFICATE blocks, or a single
// DER certificate when data is not PEM. Non-certificate PEM blocks are
// skipped.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	sawPEM := false
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		sawPEM = true

		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if sawPEM {
		return certs, nil
	}

	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return []*x509.Certificate{cert}, nil
}

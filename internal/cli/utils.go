package cli

import (
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
	"github.com/remiblancher/ocspcheck/internal/trust"
)

// LoadCertFromPath loads the first certificate of a PEM or DER file.
func LoadCertFromPath(path string) (*x509.Certificate, error) {
	certs, err := trust.LoadCertificates(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificate found in %s", path)
	}
	return certs[0], nil
}

// LoadSigner loads a PEM private key usable for signing.
func LoadSigner(path string) (crypto.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("--key is required")
	}
	priv, err := pkicrypto.LoadPrivateKey(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key %T cannot sign", priv)
	}
	return signer, nil
}

// ParseHex decodes a hex string, ignoring colons and surrounding space so
// values copied from openssl output are accepted.
func ParseHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	return hex.DecodeString(s)
}

// ReadInput reads path, or standard input when path is "-".
func ReadInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// WriteOutput writes data to path with owner-only permissions.
func WriteOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

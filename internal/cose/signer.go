package cose

import (
	"crypto"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/slhdsa"
	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

// NewSigner returns a COSE signer for key. ECDSA (P-256/384/521), Ed25519
// and RSA (PS256) keys use go-cose directly; Ed448, ML-DSA and SLH-DSA keys
// sign the Sig_structure through internal/crypto.
func NewSigner(key crypto.Signer) (gocose.Signer, error) {
	if key == nil {
		return nil, errors.New("signing key is nil")
	}
	alg, err := algorithmForKey(key.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to determine algorithm: %w", err)
	}
	if alg.native() {
		return gocose.NewSigner(alg.cose, key)
	}
	return &pkiSigner{alg: alg, key: key}, nil
}

// NewVerifier returns a COSE verifier for pub. See NewSigner for the
// supported key types.
func NewVerifier(pub crypto.PublicKey) (gocose.Verifier, error) {
	alg, err := algorithmForKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to determine algorithm: %w", err)
	}
	if alg.native() {
		return gocose.NewVerifier(alg.cose, pub)
	}
	if k, ok := pub.(slhdsa.PublicKey); ok {
		pub = &k
	}
	return &pkiVerifier{alg: alg, key: pub}, nil
}

// pkiSigner signs the raw Sig_structure; none of its algorithms pre-hash.
type pkiSigner struct {
	alg keyAlgorithm
	key crypto.Signer
}

func (s *pkiSigner) Algorithm() gocose.Algorithm {
	return s.alg.cose
}

func (s *pkiSigner) Sign(random io.Reader, content []byte) ([]byte, error) {
	alg, sig, err := pkicrypto.SignMessage(random, s.key, content)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	if alg != s.alg.pki {
		return nil, fmt.Errorf("key signed with %s, expected %s", alg, s.alg.pki)
	}
	return sig, nil
}

type pkiVerifier struct {
	alg keyAlgorithm
	key crypto.PublicKey
}

func (v *pkiVerifier) Algorithm() gocose.Algorithm {
	return v.alg.cose
}

func (v *pkiVerifier) Verify(content, signature []byte) error {
	ok, err := pkicrypto.VerifySignature(v.alg.pki, v.key, content, signature)
	if err != nil {
		return err
	}
	if !ok {
		return gocose.ErrVerification
	}
	return nil
}

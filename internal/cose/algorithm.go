// Package cose issues and verifies signed validation receipts: COSE_Sign1
// (RFC 9052) messages whose payload is a deterministic CBOR summary of a
// validated OCSP response.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"
	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

// COSE Algorithm IDs.
// Classical algorithms are from the IANA COSE Algorithms Registry.
// ML-DSA follows draft-ietf-cose-dilithium; SLH-DSA uses the private-use range.
const (
	AlgES256 gocose.Algorithm = -7
	AlgES384 gocose.Algorithm = -35
	AlgES512 gocose.Algorithm = -36
	AlgEdDSA gocose.Algorithm = -8
	AlgPS256 gocose.Algorithm = -37

	AlgMLDSA44 gocose.Algorithm = -48
	AlgMLDSA65 gocose.Algorithm = -49
	AlgMLDSA87 gocose.Algorithm = -50

	AlgSLHDSASHA2128s gocose.Algorithm = -70020
	AlgSLHDSASHA2128f gocose.Algorithm = -70021
	AlgSLHDSASHA2192s gocose.Algorithm = -70022
	AlgSLHDSASHA2192f gocose.Algorithm = -70023
	AlgSLHDSASHA2256s gocose.Algorithm = -70024
	AlgSLHDSASHA2256f gocose.Algorithm = -70025
)

// keyAlgorithm describes how a key signs receipts. Keys that go-cose
// handles natively have an empty pki algorithm; the rest are signed and
// verified through internal/crypto.
type keyAlgorithm struct {
	cose gocose.Algorithm
	pki  pkicrypto.AlgorithmID
}

func (k keyAlgorithm) native() bool {
	return k.pki == pkicrypto.AlgUnknown
}

var slhdsaAlgorithms = map[slhdsa.ID]keyAlgorithm{
	slhdsa.SHA2_128s: {AlgSLHDSASHA2128s, pkicrypto.AlgSLHDSA128s},
	slhdsa.SHA2_128f: {AlgSLHDSASHA2128f, pkicrypto.AlgSLHDSA128f},
	slhdsa.SHA2_192s: {AlgSLHDSASHA2192s, pkicrypto.AlgSLHDSA192s},
	slhdsa.SHA2_192f: {AlgSLHDSASHA2192f, pkicrypto.AlgSLHDSA192f},
	slhdsa.SHA2_256s: {AlgSLHDSASHA2256s, pkicrypto.AlgSLHDSA256s},
	slhdsa.SHA2_256f: {AlgSLHDSASHA2256f, pkicrypto.AlgSLHDSA256f},
}

// algorithmForKey picks the receipt algorithm for a public key.
func algorithmForKey(pub crypto.PublicKey) (keyAlgorithm, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		switch key.Curve.Params().BitSize {
		case 256:
			return keyAlgorithm{cose: AlgES256}, nil
		case 384:
			return keyAlgorithm{cose: AlgES384}, nil
		case 521:
			return keyAlgorithm{cose: AlgES512}, nil
		}
		return keyAlgorithm{}, fmt.Errorf("unsupported ECDSA curve: %s", key.Curve.Params().Name)
	case ed25519.PublicKey:
		return keyAlgorithm{cose: AlgEdDSA}, nil
	case *rsa.PublicKey:
		return keyAlgorithm{cose: AlgPS256}, nil
	case ed448.PublicKey:
		return keyAlgorithm{AlgEdDSA, pkicrypto.AlgEd448}, nil
	case *mldsa44.PublicKey:
		return keyAlgorithm{AlgMLDSA44, pkicrypto.AlgMLDSA44}, nil
	case *mldsa65.PublicKey:
		return keyAlgorithm{AlgMLDSA65, pkicrypto.AlgMLDSA65}, nil
	case *mldsa87.PublicKey:
		return keyAlgorithm{AlgMLDSA87, pkicrypto.AlgMLDSA87}, nil
	case *slhdsa.PublicKey:
		if alg, ok := slhdsaAlgorithms[key.ID]; ok {
			return alg, nil
		}
		return keyAlgorithm{}, fmt.Errorf("unsupported SLH-DSA parameter set: %v", key.ID)
	case slhdsa.PublicKey:
		return algorithmForKey(&key)
	default:
		return keyAlgorithm{}, fmt.Errorf("unsupported key type: %T", pub)
	}
}

// IsPQCAlgorithm reports whether alg is a post-quantum algorithm.
func IsPQCAlgorithm(alg gocose.Algorithm) bool {
	switch alg {
	case AlgMLDSA44, AlgMLDSA65, AlgMLDSA87,
		AlgSLHDSASHA2128s, AlgSLHDSASHA2128f,
		AlgSLHDSASHA2192s, AlgSLHDSASHA2192f,
		AlgSLHDSASHA2256s, AlgSLHDSASHA2256f:
		return true
	}
	return false
}

// AlgorithmName returns a human-readable name for a COSE algorithm.
func AlgorithmName(alg gocose.Algorithm) string {
	switch alg {
	case AlgES256:
		return "ES256"
	case AlgES384:
		return "ES384"
	case AlgES512:
		return "ES512"
	case AlgEdDSA:
		return "EdDSA"
	case AlgPS256:
		return "PS256"
	case AlgMLDSA44:
		return "ML-DSA-44"
	case AlgMLDSA65:
		return "ML-DSA-65"
	case AlgMLDSA87:
		return "ML-DSA-87"
	case AlgSLHDSASHA2128s:
		return "SLH-DSA-SHA2-128s"
	case AlgSLHDSASHA2128f:
		return "SLH-DSA-SHA2-128f"
	case AlgSLHDSASHA2192s:
		return "SLH-DSA-SHA2-192s"
	case AlgSLHDSASHA2192f:
		return "SLH-DSA-SHA2-192f"
	case AlgSLHDSASHA2256s:
		return "SLH-DSA-SHA2-256s"
	case AlgSLHDSASHA2256f:
		return "SLH-DSA-SHA2-256f"
	default:
		return fmt.Sprintf("Unknown(%d)", alg)
	}
}

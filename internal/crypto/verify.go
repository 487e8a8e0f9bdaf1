package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/asn1"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"
)

// DefaultProvider verifies the classical algorithms with the standard library
// and Ed448, ML-DSA and SLH-DSA with circl.
type DefaultProvider struct{}

// Name implements Provider.
func (DefaultProvider) Name() string { return DefaultProviderName }

// Verify implements Provider.
func (DefaultProvider) Verify(sigAlg asn1.ObjectIdentifier, pub crypto.PublicKey, message, signature []byte) (bool, error) {
	alg := AlgorithmFromOID(sigAlg)
	if alg == AlgUnknown {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, sigAlg)
	}
	return VerifySignature(alg, pub, message, signature)
}

// VerifySignature verifies signature over message with the given algorithm.
// For hashed algorithms the message is digested here; callers pass the
// signed bytes, not a digest.
func VerifySignature(alg AlgorithmID, pub crypto.PublicKey, message, signature []byte) (bool, error) {
	info, ok := algorithms[alg]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}

	switch info.family {
	case familyRSA:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		digest, err := hashMessage(info.Hash, message)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(rsaPub, info.Hash, digest, signature) == nil, nil

	case familyECDSA:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		digest, err := hashMessage(info.Hash, message)
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(ecPub, digest, signature), nil

	case familyEd25519:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		return ed25519.Verify(edPub, message, signature), nil

	case familyEd448:
		edPub, ok := pub.(ed448.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		if len(edPub) != ed448.PublicKeySize {
			return false, fmt.Errorf("invalid Ed448 public key size: %d", len(edPub))
		}
		return ed448.Verify(edPub, message, signature, ""), nil

	case familyMLDSA44:
		mlPub, ok := pub.(*mldsa44.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		return mldsa44.Verify(mlPub, message, nil, signature), nil

	case familyMLDSA65:
		mlPub, ok := pub.(*mldsa65.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		return mldsa65.Verify(mlPub, message, nil, signature), nil

	case familyMLDSA87:
		mlPub, ok := pub.(*mldsa87.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		return mldsa87.Verify(mlPub, message, nil, signature), nil

	case familySLHDSA:
		if k, isValue := pub.(slhdsa.PublicKey); isValue {
			pub = &k
		}
		slhPub, ok := pub.(*slhdsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s with %T", ErrKeyMismatch, alg, pub)
		}
		if slhPub.ID != info.slhID {
			return false, fmt.Errorf("%w: %s with %v key", ErrKeyMismatch, alg, slhPub.ID)
		}
		return slhdsa.Verify(slhPub, slhdsa.NewMessage(message), signature, nil), nil

	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

func hashMessage(h crypto.Hash, message []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: hash %v not linked", ErrUnsupportedAlgorithm, h)
	}
	hasher := h.New()
	hasher.Write(message)
	return hasher.Sum(nil), nil
}

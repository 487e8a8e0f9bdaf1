package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"
)

// KeyPair holds a public/private key pair.
type KeyPair struct {
	Algorithm  AlgorithmID
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
}

// GenerateKeyPair generates a signing key pair for alg.
// Hashed RSA/ECDSA variants share key types: ecdsa-sha256 yields P-256,
// ecdsa-sha384 P-384, ecdsa-sha512 P-521, and all RSA variants 2048 bits.
func GenerateKeyPair(alg AlgorithmID) (*KeyPair, error) {
	return GenerateKeyPairWithRand(rand.Reader, alg)
}

// GenerateKeyPairWithRand generates a key pair using the provided random source.
func GenerateKeyPairWithRand(random io.Reader, alg AlgorithmID) (*KeyPair, error) {
	info, ok := algorithms[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}

	var priv crypto.PrivateKey
	var pub crypto.PublicKey
	var err error

	switch info.family {
	case familyRSA:
		var k *rsa.PrivateKey
		if k, err = rsa.GenerateKey(random, 2048); err == nil {
			priv, pub = k, &k.PublicKey
		}

	case familyECDSA:
		curve := elliptic.P256()
		switch info.Hash {
		case crypto.SHA384:
			curve = elliptic.P384()
		case crypto.SHA512:
			curve = elliptic.P521()
		}
		var k *ecdsa.PrivateKey
		if k, err = ecdsa.GenerateKey(curve, random); err == nil {
			priv, pub = k, &k.PublicKey
		}

	case familyEd25519:
		pub, priv, err = ed25519.GenerateKey(random)

	case familyEd448:
		pub, priv, err = ed448.GenerateKey(random)

	case familyMLDSA44:
		pub, priv, err = mldsa44.GenerateKey(random)
	case familyMLDSA65:
		pub, priv, err = mldsa65.GenerateKey(random)
	case familyMLDSA87:
		pub, priv, err = mldsa87.GenerateKey(random)

	case familySLHDSA:
		var slhPub slhdsa.PublicKey
		var slhPriv slhdsa.PrivateKey
		if slhPub, slhPriv, err = slhdsa.GenerateKey(random, info.slhID); err == nil {
			priv, pub = &slhPriv, &slhPub
		}

	default:
		return nil, fmt.Errorf("key generation not implemented for: %s", alg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}

	return &KeyPair{
		Algorithm:  alg,
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

// SignMessage signs message with priv and returns the signature algorithm
// used. RSA keys sign with SHA-256; ECDSA keys pick the digest matching
// their curve size.
func SignMessage(random io.Reader, priv crypto.PrivateKey, message []byte) (AlgorithmID, []byte, error) {
	switch k := priv.(type) {
	case *ecdsa.PrivateKey:
		alg := AlgECDSASHA256
		switch k.Curve.Params().BitSize {
		case 384:
			alg = AlgECDSASHA384
		case 521:
			alg = AlgECDSASHA512
		}
		digest, err := hashMessage(alg.Hash(), message)
		if err != nil {
			return "", nil, err
		}
		sig, err := ecdsa.SignASN1(random, k, digest)
		return alg, sig, err

	case *rsa.PrivateKey:
		digest, err := hashMessage(crypto.SHA256, message)
		if err != nil {
			return "", nil, err
		}
		sig, err := rsa.SignPKCS1v15(random, k, crypto.SHA256, digest)
		return AlgRSASHA256, sig, err

	case ed25519.PrivateKey:
		return AlgEd25519, ed25519.Sign(k, message), nil

	case ed448.PrivateKey:
		return AlgEd448, ed448.Sign(k, message, ""), nil

	case *mldsa44.PrivateKey:
		sig, err := k.Sign(random, message, crypto.Hash(0))
		return AlgMLDSA44, sig, err
	case *mldsa65.PrivateKey:
		sig, err := k.Sign(random, message, crypto.Hash(0))
		return AlgMLDSA65, sig, err
	case *mldsa87.PrivateKey:
		sig, err := k.Sign(random, message, crypto.Hash(0))
		return AlgMLDSA87, sig, err

	case *slhdsa.PrivateKey:
		alg := slhdsaAlgorithm(k.ID)
		if alg == AlgUnknown {
			return "", nil, fmt.Errorf("%w: SLH-DSA parameter set %v", ErrUnsupportedAlgorithm, k.ID)
		}
		sig, err := k.Sign(random, message, nil)
		return alg, sig, err

	default:
		return "", nil, fmt.Errorf("unsupported private key type: %T", priv)
	}
}

// publicKeyInfo mirrors the SubjectPublicKeyInfo structure.
type publicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// PublicKeyFromCertificate returns the certificate's public key. Keys the
// standard library leaves unparsed (Ed448, ML-DSA, SLH-DSA) are decoded
// from the raw SubjectPublicKeyInfo.
func PublicKeyFromCertificate(cert *x509.Certificate) (crypto.PublicKey, error) {
	if cert == nil {
		return nil, errors.New("certificate is nil")
	}
	if cert.PublicKey != nil {
		return cert.PublicKey, nil
	}
	return ParsePublicKeyInfo(cert.RawSubjectPublicKeyInfo)
}

// ParsePublicKeyInfo parses a DER SubjectPublicKeyInfo.
func ParsePublicKeyInfo(der []byte) (crypto.PublicKey, error) {
	var spki publicKeyInfo
	rest, err := asn1.Unmarshal(der, &spki)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SubjectPublicKeyInfo: %w", err)
	}
	if len(rest) > 0 {
		return nil, errors.New("trailing data after SubjectPublicKeyInfo")
	}

	alg := AlgorithmFromOID(spki.Algorithm.Algorithm)
	info, ok := algorithms[alg]
	if !ok {
		// Classical keys carry key OIDs rather than signature OIDs.
		return x509.ParsePKIXPublicKey(der)
	}

	raw := spki.PublicKey.RightAlign()
	switch info.family {
	case familyEd448:
		if len(raw) != ed448.PublicKeySize {
			return nil, fmt.Errorf("invalid Ed448 public key size: %d", len(raw))
		}
		return ed448.PublicKey(raw), nil
	case familyMLDSA44:
		pub := new(mldsa44.PublicKey)
		if err := pub.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 public key: %w", err)
		}
		return pub, nil
	case familyMLDSA65:
		pub := new(mldsa65.PublicKey)
		if err := pub.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 public key: %w", err)
		}
		return pub, nil
	case familyMLDSA87:
		pub := new(mldsa87.PublicKey)
		if err := pub.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 public key: %w", err)
		}
		return pub, nil
	case familySLHDSA:
		pub := &slhdsa.PublicKey{ID: info.slhID}
		if err := pub.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s public key: %w", alg, err)
		}
		return pub, nil
	default:
		return x509.ParsePKIXPublicKey(der)
	}
}

// MarshalPublicKeyInfo encodes pub as a DER SubjectPublicKeyInfo.
func MarshalPublicKeyInfo(pub crypto.PublicKey) ([]byte, error) {
	var alg AlgorithmID
	var raw []byte
	var err error

	switch k := pub.(type) {
	case ed448.PublicKey:
		alg, raw = AlgEd448, []byte(k)
	case *mldsa44.PublicKey:
		alg = AlgMLDSA44
		raw, err = k.MarshalBinary()
	case *mldsa65.PublicKey:
		alg = AlgMLDSA65
		raw, err = k.MarshalBinary()
	case *mldsa87.PublicKey:
		alg = AlgMLDSA87
		raw, err = k.MarshalBinary()
	case *slhdsa.PublicKey:
		alg = slhdsaAlgorithm(k.ID)
		raw, err = k.MarshalBinary()
	case slhdsa.PublicKey:
		// slhdsa.PrivateKey.Public returns the key by value.
		return MarshalPublicKeyInfo(&k)
	default:
		return x509.MarshalPKIXPublicKey(pub)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s public key: %w", alg, err)
	}
	if alg == AlgUnknown {
		return nil, fmt.Errorf("unsupported public key type: %T", pub)
	}

	return asn1.Marshal(publicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: alg.OID()},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: len(raw) * 8},
	})
}

// PEM block types for keys the standard library cannot encode as PKCS#8.
const (
	pemTypeEd448   = "ED448 PRIVATE KEY"
	pemTypeMLDSA44 = "ML-DSA-44 PRIVATE KEY"
	pemTypeMLDSA65 = "ML-DSA-65 PRIVATE KEY"
	pemTypeMLDSA87 = "ML-DSA-87 PRIVATE KEY"
)

var slhdsaPEMTypes = map[string]slhdsa.ID{
	"SLH-DSA-SHA2-128s PRIVATE KEY": slhdsa.SHA2_128s,
	"SLH-DSA-SHA2-128f PRIVATE KEY": slhdsa.SHA2_128f,
	"SLH-DSA-SHA2-192s PRIVATE KEY": slhdsa.SHA2_192s,
	"SLH-DSA-SHA2-192f PRIVATE KEY": slhdsa.SHA2_192f,
	"SLH-DSA-SHA2-256s PRIVATE KEY": slhdsa.SHA2_256s,
	"SLH-DSA-SHA2-256f PRIVATE KEY": slhdsa.SHA2_256f,
}

// LoadPrivateKey loads a private key from a PEM file.
func LoadPrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	return ParsePrivateKeyPEM(block)
}

// ParsePrivateKeyPEM parses a single PEM key block.
func ParsePrivateKeyPEM(block *pem.Block) (crypto.PrivateKey, error) {
	switch block.Type {
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		return priv, nil

	case "EC PRIVATE KEY":
		priv, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC key: %w", err)
		}
		return priv, nil

	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA key: %w", err)
		}
		return priv, nil

	case pemTypeEd448:
		if len(block.Bytes) != ed448.SeedSize {
			return nil, fmt.Errorf("invalid Ed448 seed size: %d", len(block.Bytes))
		}
		return ed448.NewKeyFromSeed(block.Bytes), nil

	case pemTypeMLDSA44:
		priv := new(mldsa44.PrivateKey)
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 key: %w", err)
		}
		return priv, nil

	case pemTypeMLDSA65:
		priv := new(mldsa65.PrivateKey)
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 key: %w", err)
		}
		return priv, nil

	case pemTypeMLDSA87:
		priv := new(mldsa87.PrivateKey)
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 key: %w", err)
		}
		return priv, nil
	}

	if id, ok := slhdsaPEMTypes[block.Type]; ok {
		priv := &slhdsa.PrivateKey{ID: id}
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", block.Type, err)
		}
		return priv, nil
	}
	return nil, fmt.Errorf("unknown PEM type: %s", block.Type)
}

// EncodePrivateKeyPEM encodes priv in the format ParsePrivateKeyPEM reads.
func EncodePrivateKeyPEM(priv crypto.PrivateKey) (*pem.Block, error) {
	switch k := priv.(type) {
	case ed448.PrivateKey:
		return &pem.Block{Type: pemTypeEd448, Bytes: k.Seed()}, nil
	case *mldsa44.PrivateKey:
		return marshalBinaryPEM(pemTypeMLDSA44, k)
	case *mldsa65.PrivateKey:
		return marshalBinaryPEM(pemTypeMLDSA65, k)
	case *mldsa87.PrivateKey:
		return marshalBinaryPEM(pemTypeMLDSA87, k)
	case *slhdsa.PrivateKey:
		for pemType, id := range slhdsaPEMTypes {
			if id == k.ID {
				return marshalBinaryPEM(pemType, k)
			}
		}
		return nil, fmt.Errorf("unsupported SLH-DSA parameter set: %v", k.ID)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PKCS#8 key: %w", err)
	}
	return &pem.Block{Type: "PRIVATE KEY", Bytes: der}, nil
}

type binaryMarshaler interface {
	MarshalBinary() ([]byte, error)
}

func marshalBinaryPEM(pemType string, k binaryMarshaler) (*pem.Block, error) {
	der, err := k.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", pemType, err)
	}
	return &pem.Block{Type: pemType, Bytes: der}, nil
}

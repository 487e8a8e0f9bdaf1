// Package crypto provides the signature verification providers used to check
// OCSP response signatures. Classical algorithms (RSA, ECDSA, Ed25519) use the
// standard library; Ed448 and the post-quantum algorithms (ML-DSA, SLH-DSA)
// use the cloudflare/circl library.
package crypto

import (
	"crypto"
	"encoding/asn1"
	"fmt"

	"github.com/cloudflare/circl/sign/slhdsa"
)

// AlgorithmID identifies a signature algorithm.
type AlgorithmID string

// AlgUnknown represents an unknown or unsupported algorithm.
const AlgUnknown AlgorithmID = ""

// Classical signature algorithms.
const (
	AlgRSASHA1     AlgorithmID = "rsa-sha1"
	AlgRSASHA256   AlgorithmID = "rsa-sha256"
	AlgRSASHA384   AlgorithmID = "rsa-sha384"
	AlgRSASHA512   AlgorithmID = "rsa-sha512"
	AlgECDSASHA1   AlgorithmID = "ecdsa-sha1"
	AlgECDSASHA256 AlgorithmID = "ecdsa-sha256"
	AlgECDSASHA384 AlgorithmID = "ecdsa-sha384"
	AlgECDSASHA512 AlgorithmID = "ecdsa-sha512"
	AlgEd25519     AlgorithmID = "ed25519"
	AlgEd448       AlgorithmID = "ed448"
)

// Post-quantum signature algorithms (FIPS 204 ML-DSA, FIPS 205 SLH-DSA).
const (
	AlgMLDSA44    AlgorithmID = "ml-dsa-44"
	AlgMLDSA65    AlgorithmID = "ml-dsa-65"
	AlgMLDSA87    AlgorithmID = "ml-dsa-87"
	AlgSLHDSA128s AlgorithmID = "slh-dsa-sha2-128s"
	AlgSLHDSA128f AlgorithmID = "slh-dsa-sha2-128f"
	AlgSLHDSA192s AlgorithmID = "slh-dsa-sha2-192s"
	AlgSLHDSA192f AlgorithmID = "slh-dsa-sha2-192f"
	AlgSLHDSA256s AlgorithmID = "slh-dsa-sha2-256s"
	AlgSLHDSA256f AlgorithmID = "slh-dsa-sha2-256f"
)

// keyFamily groups algorithms that share a public key type.
type keyFamily int

const (
	familyUnknown keyFamily = iota
	familyRSA
	familyECDSA
	familyEd25519
	familyEd448
	familyMLDSA44
	familyMLDSA65
	familyMLDSA87
	familySLHDSA
)

// algorithmInfo holds metadata about a signature algorithm.
type algorithmInfo struct {
	OID         asn1.ObjectIdentifier
	Hash        crypto.Hash // zero for algorithms that sign the message directly
	family      keyFamily
	slhID       slhdsa.ID
	Description string
}

// algorithms maps AlgorithmID to its metadata.
var algorithms = map[AlgorithmID]algorithmInfo{
	// RSA PKCS#1 v1.5
	AlgRSASHA1: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5},
		Hash:        crypto.SHA1,
		family:      familyRSA,
		Description: "RSA PKCS#1 v1.5 with SHA-1 (legacy responders)",
	},
	AlgRSASHA256: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11},
		Hash:        crypto.SHA256,
		family:      familyRSA,
		Description: "RSA PKCS#1 v1.5 with SHA-256",
	},
	AlgRSASHA384: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12},
		Hash:        crypto.SHA384,
		family:      familyRSA,
		Description: "RSA PKCS#1 v1.5 with SHA-384",
	},
	AlgRSASHA512: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13},
		Hash:        crypto.SHA512,
		family:      familyRSA,
		Description: "RSA PKCS#1 v1.5 with SHA-512",
	},

	// ECDSA
	AlgECDSASHA1: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 1},
		Hash:        crypto.SHA1,
		family:      familyECDSA,
		Description: "ECDSA with SHA-1 (legacy responders)",
	},
	AlgECDSASHA256: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2},
		Hash:        crypto.SHA256,
		family:      familyECDSA,
		Description: "ECDSA with SHA-256",
	},
	AlgECDSASHA384: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3},
		Hash:        crypto.SHA384,
		family:      familyECDSA,
		Description: "ECDSA with SHA-384",
	},
	AlgECDSASHA512: {
		OID:         asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4},
		Hash:        crypto.SHA512,
		family:      familyECDSA,
		Description: "ECDSA with SHA-512",
	},

	// Edwards curves
	AlgEd25519: {
		OID:         asn1.ObjectIdentifier{1, 3, 101, 112},
		family:      familyEd25519,
		Description: "Ed25519 (EdDSA with Curve25519)",
	},
	AlgEd448: {
		OID:         asn1.ObjectIdentifier{1, 3, 101, 113},
		family:      familyEd448,
		Description: "Ed448 (EdDSA with Curve448)",
	},

	// ML-DSA (FIPS 204)
	AlgMLDSA44: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 17},
		family:      familyMLDSA44,
		Description: "ML-DSA-44 (NIST Level 1)",
	},
	AlgMLDSA65: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 18},
		family:      familyMLDSA65,
		Description: "ML-DSA-65 (NIST Level 3)",
	},
	AlgMLDSA87: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 19},
		family:      familyMLDSA87,
		Description: "ML-DSA-87 (NIST Level 5)",
	},

	// SLH-DSA (FIPS 205)
	AlgSLHDSA128s: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 20},
		family:      familySLHDSA,
		slhID:       slhdsa.SHA2_128s,
		Description: "SLH-DSA-SHA2-128s",
	},
	AlgSLHDSA128f: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 21},
		family:      familySLHDSA,
		slhID:       slhdsa.SHA2_128f,
		Description: "SLH-DSA-SHA2-128f",
	},
	AlgSLHDSA192s: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 22},
		family:      familySLHDSA,
		slhID:       slhdsa.SHA2_192s,
		Description: "SLH-DSA-SHA2-192s",
	},
	AlgSLHDSA192f: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 23},
		family:      familySLHDSA,
		slhID:       slhdsa.SHA2_192f,
		Description: "SLH-DSA-SHA2-192f",
	},
	AlgSLHDSA256s: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 24},
		family:      familySLHDSA,
		slhID:       slhdsa.SHA2_256s,
		Description: "SLH-DSA-SHA2-256s",
	},
	AlgSLHDSA256f: {
		OID:         asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 25},
		family:      familySLHDSA,
		slhID:       slhdsa.SHA2_256f,
		Description: "SLH-DSA-SHA2-256f",
	},
}

// IsValid returns true if the algorithm is recognized.
func (a AlgorithmID) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// OID returns the signature algorithm Object Identifier.
func (a AlgorithmID) OID() asn1.ObjectIdentifier {
	if info, ok := algorithms[a]; ok {
		return info.OID
	}
	return nil
}

// Hash returns the digest used before signing, or zero for algorithms that
// sign the full message (EdDSA, ML-DSA, SLH-DSA).
func (a AlgorithmID) Hash() crypto.Hash {
	return algorithms[a].Hash
}

// IsPQC returns true for post-quantum algorithms.
func (a AlgorithmID) IsPQC() bool {
	switch algorithms[a].family {
	case familyMLDSA44, familyMLDSA65, familyMLDSA87, familySLHDSA:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the algorithm.
func (a AlgorithmID) Description() string {
	if info, ok := algorithms[a]; ok {
		return info.Description
	}
	return "Unknown algorithm"
}

// String returns the algorithm identifier as a string.
func (a AlgorithmID) String() string {
	return string(a)
}

// ParseAlgorithm parses a string into an AlgorithmID.
func ParseAlgorithm(s string) (AlgorithmID, error) {
	alg := AlgorithmID(s)
	if !alg.IsValid() {
		return "", fmt.Errorf("unknown algorithm: %s", s)
	}
	return alg, nil
}

// AlgorithmFromOID returns the AlgorithmID for a given OID.
// Returns AlgUnknown if the OID is not recognized.
func AlgorithmFromOID(oid asn1.ObjectIdentifier) AlgorithmID {
	for alg, info := range algorithms {
		if oid.Equal(info.OID) {
			return alg
		}
	}
	return AlgUnknown
}

// slhdsaAlgorithm maps an SLH-DSA parameter set to its AlgorithmID.
func slhdsaAlgorithm(id slhdsa.ID) AlgorithmID {
	for alg, info := range algorithms {
		if info.family == familySLHDSA && info.slhID == id {
			return alg
		}
	}
	return AlgUnknown
}

package ocsp

import (
	"bytes"
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// CertID identifies the certificate a SingleResponse reports on.
// CertID ::= SEQUENCE {
//
//	hashAlgorithm       AlgorithmIdentifier,
//	issuerNameHash      OCTET STRING, -- Hash of issuer's DN
//	issuerKeyHash       OCTET STRING, -- Hash of issuer's public key
//	serialNumber        CertificateSerialNumber }
type CertID struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// NewCertID creates a CertID for a certificate issued by the given issuer.
func NewCertID(hashAlg crypto.Hash, issuer, cert *x509.Certificate) (*CertID, error) {
	return NewCertIDFromSerial(hashAlg, issuer, cert.SerialNumber)
}

// NewCertIDFromSerial creates a CertID for a serial number from the given issuer.
func NewCertIDFromSerial(hashAlg crypto.Hash, issuer *x509.Certificate, serial *big.Int) (*CertID, error) {
	oid, ok := hashOID(hashAlg)
	if !ok || !hashAlg.Available() {
		return nil, fmt.Errorf("unsupported hash algorithm: %v", hashAlg)
	}
	if serial == nil {
		return nil, fmt.Errorf("serial number is nil")
	}

	nameHash, keyHash, err := issuerHashes(hashAlg, issuer)
	if err != nil {
		return nil, err
	}

	return &CertID{
		HashAlgorithm:  pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue},
		IssuerNameHash: nameHash,
		IssuerKeyHash:  keyHash,
		SerialNumber:   new(big.Int).Set(serial),
	}, nil
}

// MatchesIssuer reports whether the CertID's issuer hashes match issuer.
func (id *CertID) MatchesIssuer(issuer *x509.Certificate) bool {
	hashAlg, ok := hashFromOID(id.HashAlgorithm.Algorithm)
	if !ok {
		return false
	}
	nameHash, keyHash, err := issuerHashes(hashAlg, issuer)
	if err != nil {
		return false
	}
	return bytes.Equal(id.IssuerNameHash, nameHash) && bytes.Equal(id.IssuerKeyHash, keyHash)
}

// issuerHashes computes issuerNameHash over the issuer's DER subject and
// issuerKeyHash over the subjectPublicKey BIT STRING value (RFC 6960 §4.1.1).
func issuerHashes(hashAlg crypto.Hash, issuer *x509.Certificate) ([]byte, []byte, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(issuer.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, nil, fmt.Errorf("failed to parse issuer SubjectPublicKeyInfo: %w", err)
	}

	h := hashAlg.New()
	h.Write(issuer.RawSubject)
	nameHash := h.Sum(nil)

	h.Reset()
	h.Write(spki.PublicKey.RightAlign())
	return nameHash, h.Sum(nil), nil
}

package ocsp

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// CertStatus is the classified revocation status of a certificate.
type CertStatus int

const (
	CertStatusGood    CertStatus = 0
	CertStatusRevoked CertStatus = 1
	CertStatusUnknown CertStatus = 2
)

// String returns a human-readable status string.
func (s CertStatus) String() string {
	switch s {
	case CertStatusGood:
		return "good"
	case CertStatusRevoked:
		return "revoked"
	case CertStatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RevocationReason per RFC 5280 §5.3.1
type RevocationReason int

const (
	ReasonUnspecified          RevocationReason = 0
	ReasonKeyCompromise        RevocationReason = 1
	ReasonCACompromise         RevocationReason = 2
	ReasonAffiliationChanged   RevocationReason = 3
	ReasonSuperseded           RevocationReason = 4
	ReasonCessationOfOperation RevocationReason = 5
	ReasonCertificateHold      RevocationReason = 6
	// 7 is not used
	ReasonRemoveFromCRL      RevocationReason = 8
	ReasonPrivilegeWithdrawn RevocationReason = 9
	ReasonAACompromise       RevocationReason = 10
)

var reasonNames = map[RevocationReason]string{
	ReasonUnspecified:          "unspecified",
	ReasonKeyCompromise:        "keyCompromise",
	ReasonCACompromise:         "cACompromise",
	ReasonAffiliationChanged:   "affiliationChanged",
	ReasonSuperseded:           "superseded",
	ReasonCessationOfOperation: "cessationOfOperation",
	ReasonCertificateHold:      "certificateHold",
	ReasonRemoveFromCRL:        "removeFromCRL",
	ReasonPrivilegeWithdrawn:   "privilegeWithdrawn",
	ReasonAACompromise:         "aACompromise",
}

func (r RevocationReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ParseRevocationReason parses an RFC 5280 reason name.
func ParseRevocationReason(s string) (RevocationReason, error) {
	for r, name := range reasonNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown revocation reason: %s", s)
}

// EntryStatus is the certStatus CHOICE of a SingleResponse. A nil
// EntryStatus means good.
type EntryStatus interface {
	entryStatus()
}

// RevokedStatus is revoked [1] IMPLICIT RevokedInfo.
type RevokedStatus struct {
	RevocationTime time.Time
	Reason         RevocationReason
	HasReason      bool // revocationReason was present on the wire
}

// UnknownStatus is unknown [2] IMPLICIT UnknownInfo.
type UnknownStatus struct{}

func (*RevokedStatus) entryStatus() {}
func (UnknownStatus) entryStatus()  {}

// CertStatus CHOICE tags.
const (
	certStatusTagGood    = 0
	certStatusTagRevoked = 1
	certStatusTagUnknown = 2
)

// decodeCertStatus decodes the certStatus CHOICE.
//
//	CertStatus ::= CHOICE {
//	    good        [0]     IMPLICIT NULL,
//	    revoked     [1]     IMPLICIT RevokedInfo,
//	    unknown     [2]     IMPLICIT UnknownInfo }
//
//	RevokedInfo ::= SEQUENCE {
//	    revocationTime              GeneralizedTime,
//	    revocationReason    [0]     EXPLICIT CRLReason OPTIONAL }
func decodeCertStatus(raw asn1.RawValue) (EntryStatus, error) {
	if raw.Class != asn1.ClassContextSpecific {
		return nil, fmt.Errorf("invalid certStatus class %d", raw.Class)
	}

	switch raw.Tag {
	case certStatusTagGood:
		if raw.IsCompound || len(raw.Bytes) != 0 {
			return nil, errors.New("invalid good status encoding")
		}
		return nil, nil

	case certStatusTagUnknown:
		if raw.IsCompound || len(raw.Bytes) != 0 {
			return nil, errors.New("invalid unknown status encoding")
		}
		return UnknownStatus{}, nil

	case certStatusTagRevoked:
		if !raw.IsCompound {
			return nil, errors.New("invalid revoked status encoding")
		}
		info := cryptobyte.String(raw.Bytes)
		revoked := &RevokedStatus{}
		if !info.ReadASN1GeneralizedTime(&revoked.RevocationTime) {
			return nil, errors.New("invalid revocationTime")
		}

		var reason cryptobyte.String
		var hasReason bool
		if !info.ReadOptionalASN1(&reason, &hasReason, cbasn1.Tag(0).Constructed().ContextSpecific()) {
			return nil, errors.New("invalid revocationReason")
		}
		if hasReason {
			var code int
			if !reason.ReadASN1Enum(&code) || !reason.Empty() {
				return nil, errors.New("invalid revocationReason")
			}
			revoked.Reason = RevocationReason(code)
			revoked.HasReason = true
		}
		if !info.Empty() {
			return nil, errors.New("trailing data in RevokedInfo")
		}
		return revoked, nil

	default:
		return nil, fmt.Errorf("invalid certStatus tag %d", raw.Tag)
	}
}

// encodeCertStatus is the inverse of decodeCertStatus.
func encodeCertStatus(status EntryStatus) (asn1.RawValue, error) {
	switch s := status.(type) {
	case nil:
		return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: certStatusTagGood}, nil

	case UnknownStatus:
		return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: certStatusTagUnknown}, nil

	case *RevokedStatus:
		if s == nil {
			return asn1.RawValue{}, errors.New("nil revoked status")
		}
		var b cryptobyte.Builder
		b.AddASN1GeneralizedTime(s.RevocationTime.UTC())
		if s.HasReason {
			b.AddASN1(cbasn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddASN1Enum(int64(s.Reason))
			})
		}
		body, err := b.Bytes()
		if err != nil {
			return asn1.RawValue{}, fmt.Errorf("failed to encode RevokedInfo: %w", err)
		}
		return asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        certStatusTagRevoked,
			IsCompound: true,
			Bytes:      body,
		}, nil

	default:
		return asn1.RawValue{}, fmt.Errorf("unsupported status type %T", status)
	}
}

// StatusInfo is the classified status of one response entry.
type StatusInfo struct {
	Serial *big.Int
	Status CertStatus

	// Set only for CertStatusRevoked. RevocationReason is ReasonUnspecified
	// when the responder did not send one.
	RevocationTime   time.Time
	RevocationReason RevocationReason

	// Informational validity window; NextUpdate is zero when absent.
	ThisUpdate time.Time
	NextUpdate time.Time
}

// Classify maps a SingleResponse to its StatusInfo. It never fails.
func Classify(sr SingleResponse) StatusInfo {
	info := StatusInfo{
		Status:     CertStatusUnknown,
		ThisUpdate: sr.ThisUpdate,
		NextUpdate: sr.NextUpdate,
	}
	if sr.CertID.SerialNumber != nil {
		info.Serial = new(big.Int).Set(sr.CertID.SerialNumber)
	}

	switch s := sr.Status.(type) {
	case nil:
		info.Status = CertStatusGood
	case *RevokedStatus:
		info.Status = CertStatusRevoked
		info.RevocationReason = ReasonUnspecified
		if s == nil {
			break
		}
		info.RevocationTime = s.RevocationTime
		if s.HasReason {
			info.RevocationReason = s.Reason
		}
	}
	return info
}

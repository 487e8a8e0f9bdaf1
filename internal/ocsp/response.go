package ocsp

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"time"
)

// ResponseStatus is the top-level OCSPResponseStatus.
type ResponseStatus int

const (
	StatusSuccessful       ResponseStatus = 0
	StatusMalformedRequest ResponseStatus = 1
	StatusInternalError    ResponseStatus = 2
	StatusTryLater         ResponseStatus = 3
	// 4 is not used
	StatusSigRequired  ResponseStatus = 5
	StatusUnauthorized ResponseStatus = 6
)

// String returns a human-readable status string.
func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusMalformedRequest:
		return "malformedRequest"
	case StatusInternalError:
		return "internalError"
	case StatusTryLater:
		return "tryLater"
	case StatusSigRequired:
		return "sigRequired"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// OCSPResponse ::= SEQUENCE {
//
//	responseStatus         OCSPResponseStatus,
//	responseBytes          [0] EXPLICIT ResponseBytes OPTIONAL }
type responseASN1 struct {
	Status        asn1.Enumerated
	ResponseBytes responseBytes `asn1:"optional,explicit,tag:0"`
}

// ResponseBytes ::= SEQUENCE {
//
//	responseType   OBJECT IDENTIFIER,
//	response       OCTET STRING }
type responseBytes struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

// BasicOCSPResponse ::= SEQUENCE {
//
//	tbsResponseData      ResponseData,
//	signatureAlgorithm   AlgorithmIdentifier,
//	signature            BIT STRING,
//	certs            [0] EXPLICIT SEQUENCE OF Certificate OPTIONAL }
type basicResponseASN1 struct {
	TBSResponseData    responseData
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
	Certs              []asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// ResponseData ::= SEQUENCE {
//
//	version              [0] EXPLICIT Version DEFAULT v1,
//	responderID              ResponderID,
//	producedAt               GeneralizedTime,
//	responses                SEQUENCE OF SingleResponse,
//	responseExtensions   [1] EXPLICIT Extensions OPTIONAL }
type responseData struct {
	Raw                asn1.RawContent
	Version            int           `asn1:"optional,explicit,tag:0,default:0"`
	ResponderID        asn1.RawValue // CHOICE: byName [1] or byKey [2]
	ProducedAt         time.Time     `asn1:"generalized"`
	Responses          []singleResponse
	ResponseExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

// SingleResponse ::= SEQUENCE {
//
//	certID                       CertID,
//	certStatus                   CertStatus,
//	thisUpdate                   GeneralizedTime,
//	nextUpdate           [0]     EXPLICIT GeneralizedTime OPTIONAL,
//	singleExtensions     [1]     EXPLICIT Extensions OPTIONAL }
type singleResponse struct {
	CertID           CertID
	CertStatus       asn1.RawValue
	ThisUpdate       time.Time        `asn1:"generalized"`
	NextUpdate       time.Time        `asn1:"optional,explicit,tag:0,generalized"`
	SingleExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

// ResponderID tags.
const (
	responderIDByName = 1
	responderIDByKey  = 2
)

// Response is a parsed OCSPResponse envelope. The embedded basic response is
// decoded on demand by Basic, so a Response is never modified after parsing
// and may be shared between goroutines.
type Response struct {
	raw          []byte
	status       ResponseStatus
	responseType asn1.ObjectIdentifier
	body         []byte
}

// ParseResponse parses a DER-encoded OCSPResponse envelope. Errors match
// ErrMalformedResponse.
func ParseResponse(der []byte) (*Response, error) {
	var resp responseASN1
	rest, err := asn1.Unmarshal(der, &resp)
	if err != nil {
		return nil, newError(ErrMalformedResponse, err)
	}
	if len(rest) > 0 {
		return nil, newError(ErrMalformedResponse, errors.New("trailing data after OCSP response"))
	}

	raw := make([]byte, len(der))
	copy(raw, der)

	return &Response{
		raw:          raw,
		status:       ResponseStatus(resp.Status),
		responseType: resp.ResponseBytes.ResponseType,
		body:         resp.ResponseBytes.Response,
	}, nil
}

// Status returns the top-level response status.
func (r *Response) Status() ResponseStatus {
	return r.status
}

// Raw returns a copy of the DER encoding the response was parsed from.
func (r *Response) Raw() []byte {
	out := make([]byte, len(r.raw))
	copy(out, r.raw)
	return out
}

// Basic decodes the embedded BasicOCSPResponse. Errors match ErrMalformedResponse.
func (r *Response) Basic() (*BasicResponse, error) {
	if r.body == nil {
		return nil, newError(ErrMalformedResponse, errors.New("response has no responseBytes"))
	}
	if !r.responseType.Equal(OIDOcspBasic) {
		return nil, newError(ErrMalformedResponse, fmt.Errorf("unsupported response type %s", r.responseType))
	}
	basic, err := parseBasicResponse(r.body)
	if err != nil {
		return nil, newError(ErrMalformedResponse, err)
	}
	return basic, nil
}

// BasicResponse is the signed payload of a successful response.
type BasicResponse struct {
	// TBSResponseData is the DER ResponseData the signature covers.
	TBSResponseData    []byte
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte

	// Exactly one of ResponderName (DER Name) and ResponderKeyHash is set.
	ResponderName    []byte
	ResponderKeyHash []byte

	ProducedAt time.Time
	Extensions []pkix.Extension
	Responses  []SingleResponse

	// RawCertificates holds the embedded certificates in wire order.
	RawCertificates [][]byte
}

// SingleResponse is one certificate status entry.
type SingleResponse struct {
	CertID CertID

	// Status is nil for good, *RevokedStatus or UnknownStatus otherwise.
	Status EntryStatus

	ThisUpdate time.Time
	NextUpdate time.Time // zero when absent
	Extensions []pkix.Extension
}

func parseBasicResponse(der []byte) (*BasicResponse, error) {
	var basic basicResponseASN1
	rest, err := asn1.Unmarshal(der, &basic)
	if err != nil {
		return nil, fmt.Errorf("failed to parse basic response: %w", err)
	}
	if len(rest) > 0 {
		return nil, errors.New("trailing data after basic response")
	}

	tbs := basic.TBSResponseData
	out := &BasicResponse{
		TBSResponseData:    tbs.Raw,
		SignatureAlgorithm: basic.SignatureAlgorithm,
		Signature:          basic.Signature.RightAlign(),
		ProducedAt:         tbs.ProducedAt,
		Extensions:         tbs.ResponseExtensions,
		Responses:          make([]SingleResponse, 0, len(tbs.Responses)),
	}

	if err := out.setResponderID(tbs.ResponderID); err != nil {
		return nil, err
	}

	for i, sr := range tbs.Responses {
		status, err := decodeCertStatus(sr.CertStatus)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", i, err)
		}
		if sr.CertID.SerialNumber == nil {
			return nil, fmt.Errorf("response %d: missing serial number", i)
		}
		out.Responses = append(out.Responses, SingleResponse{
			CertID:     sr.CertID,
			Status:     status,
			ThisUpdate: sr.ThisUpdate,
			NextUpdate: sr.NextUpdate,
			Extensions: sr.SingleExtensions,
		})
	}

	for _, c := range basic.Certs {
		out.RawCertificates = append(out.RawCertificates, c.FullBytes)
	}

	return out, nil
}

func (b *BasicResponse) setResponderID(id asn1.RawValue) error {
	if id.Class != asn1.ClassContextSpecific || !id.IsCompound {
		return fmt.Errorf("invalid responder ID")
	}
	switch id.Tag {
	case responderIDByName:
		b.ResponderName = id.Bytes
	case responderIDByKey:
		var keyHash []byte
		rest, err := asn1.Unmarshal(id.Bytes, &keyHash)
		if err != nil {
			return fmt.Errorf("invalid responder key hash: %w", err)
		}
		if len(rest) > 0 {
			return errors.New("trailing data after responder key hash")
		}
		b.ResponderKeyHash = keyHash
	default:
		return fmt.Errorf("invalid responder ID tag %d", id.Tag)
	}
	return nil
}

// ExtensionValue returns the extnValue of the response extension with the
// given OID, as its DER OCTET STRING encoding.
func (b *BasicResponse) ExtensionValue(oid asn1.ObjectIdentifier) ([]byte, bool) {
	for _, ext := range b.Extensions {
		if ext.Id.Equal(oid) {
			v, err := asn1.Marshal(ext.Value)
			if err != nil {
				return nil, false
			}
			return v, true
		}
	}
	return nil, false
}

// Certificates parses all embedded certificates.
func (b *BasicResponse) Certificates() ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(b.RawCertificates))
	for i, raw := range b.RawCertificates {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// SignerCertificate returns the first embedded certificate, which signs the response.
func (b *BasicResponse) SignerCertificate() (*x509.Certificate, error) {
	if len(b.RawCertificates) == 0 {
		return nil, errors.New("no certificates embedded in response")
	}
	cert, err := x509.ParseCertificate(b.RawCertificates[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse responder certificate: %w", err)
	}
	return cert, nil
}

package ocsp

import (
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"time"

	pkicrypto "github.com/remiblancher/ocspcheck/internal/crypto"
)

// ResponseBuilder constructs signed OCSP responses. It is used to produce
// fixture responses; a Checker never needs one.
type ResponseBuilder struct {
	responderCert *x509.Certificate
	signer        crypto.Signer
	random        io.Reader
	producedAt    time.Time
	responses     []SingleResponse
	extensions    []pkix.Extension
	extraCerts    []*x509.Certificate
	includeCerts  bool
	byName        bool
	err           error
}

// NewResponseBuilder creates a new response builder.
func NewResponseBuilder(responderCert *x509.Certificate, signer crypto.Signer) *ResponseBuilder {
	return &ResponseBuilder{
		responderCert: responderCert,
		signer:        signer,
		random:        rand.Reader,
		producedAt:    time.Now().UTC(),
		includeCerts:  true,
	}
}

// SetProducedAt sets the producedAt time.
func (b *ResponseBuilder) SetProducedAt(t time.Time) *ResponseBuilder {
	b.producedAt = t.UTC()
	return b
}

// IncludeCerts sets whether to embed the responder certificate.
func (b *ResponseBuilder) IncludeCerts(include bool) *ResponseBuilder {
	b.includeCerts = include
	return b
}

// AddCertificate embeds an extra certificate after the responder certificate.
func (b *ResponseBuilder) AddCertificate(cert *x509.Certificate) *ResponseBuilder {
	b.extraCerts = append(b.extraCerts, cert)
	return b
}

// ResponderIDByName identifies the responder by subject name instead of key hash.
func (b *ResponseBuilder) ResponderIDByName() *ResponseBuilder {
	b.byName = true
	return b
}

// AddGood adds a "good" status for a certificate.
func (b *ResponseBuilder) AddGood(certID *CertID, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	return b.add(certID, nil, thisUpdate, nextUpdate)
}

// AddRevoked adds a "revoked" status carrying an explicit reason.
func (b *ResponseBuilder) AddRevoked(certID *CertID, thisUpdate, nextUpdate, revocationTime time.Time, reason RevocationReason) *ResponseBuilder {
	return b.add(certID, &RevokedStatus{
		RevocationTime: revocationTime.UTC(),
		Reason:         reason,
		HasReason:      true,
	}, thisUpdate, nextUpdate)
}

// AddRevokedWithoutReason adds a "revoked" status with no revocationReason.
func (b *ResponseBuilder) AddRevokedWithoutReason(certID *CertID, thisUpdate, nextUpdate, revocationTime time.Time) *ResponseBuilder {
	return b.add(certID, &RevokedStatus{RevocationTime: revocationTime.UTC()}, thisUpdate, nextUpdate)
}

// AddUnknown adds an "unknown" status for a certificate.
func (b *ResponseBuilder) AddUnknown(certID *CertID, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	return b.add(certID, UnknownStatus{}, thisUpdate, nextUpdate)
}

func (b *ResponseBuilder) add(certID *CertID, status EntryStatus, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	if certID == nil {
		b.err = errors.New("nil CertID")
		return b
	}
	b.responses = append(b.responses, SingleResponse{
		CertID:     *certID,
		Status:     status,
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	})
	return b
}

// AddNonce adds a nonce extension to the response. An empty nonce is
// encoded as an empty OCTET STRING.
func (b *ResponseBuilder) AddNonce(nonce []byte) *ResponseBuilder {
	ext, err := nonceExtension(nonce)
	if err != nil {
		b.err = fmt.Errorf("failed to encode nonce: %w", err)
		return b
	}
	b.extensions = append(b.extensions, ext)
	return b
}

// AddExtension adds a raw response extension.
func (b *ResponseBuilder) AddExtension(ext pkix.Extension) *ResponseBuilder {
	b.extensions = append(b.extensions, ext)
	return b
}

// Build creates and signs the OCSP response.
func (b *ResponseBuilder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.responses) == 0 {
		return nil, fmt.Errorf("no responses added")
	}
	if b.responderCert == nil || b.signer == nil {
		return nil, fmt.Errorf("responder certificate and signer are required")
	}

	responderID, err := b.responderID()
	if err != nil {
		return nil, err
	}

	entries := make([]singleResponse, 0, len(b.responses))
	for _, sr := range b.responses {
		status, err := encodeCertStatus(sr.Status)
		if err != nil {
			return nil, err
		}
		entries = append(entries, singleResponse{
			CertID:           sr.CertID,
			CertStatus:       status,
			ThisUpdate:       sr.ThisUpdate,
			NextUpdate:       sr.NextUpdate,
			SingleExtensions: sr.Extensions,
		})
	}

	data := responseData{
		ResponderID:        responderID,
		ProducedAt:         b.producedAt,
		Responses:          entries,
		ResponseExtensions: b.extensions,
	}
	tbs, err := asn1.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}

	alg, signature, err := pkicrypto.SignMessage(b.random, b.signer, tbs)
	if err != nil {
		return nil, fmt.Errorf("failed to sign response: %w", err)
	}

	// Re-use the signed encoding verbatim.
	data.Raw = tbs
	basic := basicResponseASN1{
		TBSResponseData:    data,
		SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: alg.OID()},
		Signature:          asn1.BitString{Bytes: signature, BitLength: len(signature) * 8},
	}
	if b.includeCerts {
		basic.Certs = append(basic.Certs, asn1.RawValue{FullBytes: b.responderCert.Raw})
	}
	for _, c := range b.extraCerts {
		basic.Certs = append(basic.Certs, asn1.RawValue{FullBytes: c.Raw})
	}

	basicDER, err := asn1.Marshal(basic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal basic response: %w", err)
	}

	return asn1.Marshal(responseASN1{
		Status: asn1.Enumerated(StatusSuccessful),
		ResponseBytes: responseBytes{
			ResponseType: OIDOcspBasic,
			Response:     basicDER,
		},
	})
}

// responderID encodes the ResponderID CHOICE. Both alternatives are
// EXPLICIT: byName [1] Name, byKey [2] KeyHash, where KeyHash is the SHA-1
// of the subjectPublicKey BIT STRING value.
func (b *ResponseBuilder) responderID() (asn1.RawValue, error) {
	if b.byName {
		return asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        responderIDByName,
			IsCompound: true,
			Bytes:      b.responderCert.RawSubject,
		}, nil
	}

	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(b.responderCert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return asn1.RawValue{}, fmt.Errorf("failed to parse SubjectPublicKeyInfo: %w", err)
	}
	keyHash := sha1.Sum(spki.PublicKey.RightAlign())

	octetString, err := asn1.Marshal(keyHash[:])
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("failed to marshal key hash: %w", err)
	}
	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        responderIDByKey,
		IsCompound: true,
		Bytes:      octetString,
	}, nil
}

// NewErrorResponse creates an unsigned response carrying an error status.
func NewErrorResponse(status ResponseStatus) ([]byte, error) {
	if status == StatusSuccessful {
		return nil, fmt.Errorf("cannot create error response with successful status")
	}
	return asn1.Marshal(responseASN1{Status: asn1.Enumerated(status)})
}

package ocsp

import (
	"crypto/x509/pkix"
	"errors"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// DecodeNonce decodes a nonce extension value as returned by
// BasicResponse.ExtensionValue: an extnValue OCTET STRING whose content is
// the DER OCTET STRING holding the nonce. Both layers are read and must be
// consumed exactly. Errors match ErrMalformedResponse.
//
// An empty nonce decodes to a non-nil empty slice.
func DecodeNonce(extensionValue []byte) ([]byte, error) {
	outer := cryptobyte.String(extensionValue)
	var wrapped cryptobyte.String
	if !outer.ReadASN1(&wrapped, cbasn1.OCTET_STRING) || !outer.Empty() {
		return nil, newError(ErrMalformedResponse, errors.New("invalid nonce extension value"))
	}

	var nonce cryptobyte.String
	if !wrapped.ReadASN1(&nonce, cbasn1.OCTET_STRING) || !wrapped.Empty() {
		return nil, newError(ErrMalformedResponse, errors.New("invalid nonce payload"))
	}

	out := make([]byte, len(nonce))
	copy(out, nonce)
	return out, nil
}

// nonceExtension builds the response nonce extension for nonce.
func nonceExtension(nonce []byte) (pkix.Extension, error) {
	var b cryptobyte.Builder
	b.AddASN1OctetString(nonce)
	value, err := b.Bytes()
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: OIDOcspNonce, Value: value}, nil
}

// Package signature produces and checks SHA-256 digest signatures over document bytes.
//
// Content is hashed exactly as supplied; callers that start from text must decide its byte
// encoding before signing. Signatures always travel with their encoding, base64 being canonical.
package signature

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Encoding is the textual encoding of signature bytes.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingHex    Encoding = "hex"
)

var (
	// ErrSigning is returned when the private key is missing, malformed or unusable.
	ErrSigning = errors.New("signing failed")

	// ErrMalformedSignature is returned when a signature cannot be decoded from its encoding.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrUnknownEncoding is returned for encodings other than base64 and hex.
	ErrUnknownEncoding = errors.New("unknown signature encoding")
)

// ParseEncoding accepts "base64" or "hex", case-insensitive. Empty means base64.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingBase64:
		return EncodingBase64, nil
	case EncodingHex:
		return EncodingHex, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
}

// Signature is an encoded signature value together with its encoding.
type Signature struct {
	Value    string   `json:"value"`
	Encoding Encoding `json:"encoding"`
}

// New encodes raw signature bytes.
func New(raw []byte, enc Encoding) (Signature, error) {
	switch enc {
	case EncodingBase64:
		return Signature{Value: base64.StdEncoding.EncodeToString(raw), Encoding: enc}, nil
	case EncodingHex:
		return Signature{Value: hex.EncodeToString(raw), Encoding: enc}, nil
	}
	return Signature{}, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
}

// Parse builds a Signature from a value and an encoding name, checking that it decodes.
func Parse(value, encoding string) (Signature, error) {
	enc, err := ParseEncoding(encoding)
	if err != nil {
		return Signature{}, err
	}
	sig := Signature{Value: strings.TrimSpace(value), Encoding: enc}
	if _, err := sig.Bytes(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// Bytes decodes the signature value.
func (s Signature) Bytes() ([]byte, error) {
	if s.Value == "" {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedSignature)
	}

	var (
		raw []byte
		err error
	)
	switch s.Encoding {
	case EncodingBase64:
		raw, err = base64.StdEncoding.DecodeString(s.Value)
	case EncodingHex:
		raw, err = hex.DecodeString(s.Value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, s.Encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedSignature)
	}
	return raw, nil
}

// Canonical re-encodes the signature as base64.
func (s Signature) Canonical() (Signature, error) {
	raw, err := s.Bytes()
	if err != nil {
		return Signature{}, err
	}
	return New(raw, EncodingBase64)
}

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool {
	return s.Value == ""
}

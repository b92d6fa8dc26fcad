package pki

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/youmark/pkcs8"
)

// PEM block types
const (
	PEMTypeCertificate         = "CERTIFICATE"
	PEMTypePrivateKey          = "PRIVATE KEY"
	PEMTypeEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
	PEMTypeRSAPrivateKey       = "RSA PRIVATE KEY"
	PEMTypePublicKey           = "PUBLIC KEY"
	PEMTypeRSAPublicKey        = "RSA PUBLIC KEY"
)

var (
	// ErrMalformedCertificate is returned when certificate bytes cannot be parsed.
	ErrMalformedCertificate = errors.New("malformed certificate")

	// ErrMalformedKey is returned when key bytes cannot be parsed or are not RSA.
	ErrMalformedKey = errors.New("malformed key")

	// ErrIncorrectPassphrase is returned when an encrypted key cannot be decrypted.
	ErrIncorrectPassphrase = errors.New("incorrect passphrase")
)

// EncodeCertificatePEM encodes DER certificate bytes as a CERTIFICATE block.
func EncodeCertificatePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: PEMTypeCertificate, Bytes: der})
}

// EncodeChainPEM concatenates certificate blocks in the given order.
func EncodeChainPEM(certs ...*Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, cert.PEM()...)
	}
	return out
}

// ParseCertificatePEM parses the first CERTIFICATE block. Raw DER input is accepted too.
func ParseCertificatePEM(data []byte) (*Certificate, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != PEMTypeCertificate {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrMalformedCertificate, block.Type)
		}
		der = block.Bytes
	} else if looksLikePEM(data) {
		return nil, fmt.Errorf("%w: failed to decode PEM", ErrMalformedCertificate)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCertificate, err)
	}
	return &Certificate{Certificate: cert}, nil
}

// ParseChainPEM parses every CERTIFICATE block in data, preserving order.
func ParseChainPEM(data []byte) (Chain, error) {
	var chain Chain
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != PEMTypeCertificate {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCertificate, err)
		}
		chain = append(chain, &Certificate{Certificate: cert})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: no certificates found", ErrMalformedCertificate)
	}
	return chain, nil
}

// EncodePrivateKeyPEM encodes an RSA private key as PKCS#8.
// A non-empty passphrase produces an ENCRYPTED PRIVATE KEY block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey, passphrase []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: private key is nil", ErrMalformedKey)
	}

	blockType := PEMTypePrivateKey
	if len(passphrase) > 0 {
		blockType = PEMTypeEncryptedPrivateKey
	} else {
		passphrase = nil
	}

	der, err := pkcs8.MarshalPrivateKey(key, passphrase, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	defer clear(der)

	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), nil
}

// ParsePrivateKeyPEM parses a PKCS#8 (plain or encrypted) or PKCS#1 RSA private key.
func ParsePrivateKeyPEM(data []byte, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM", ErrMalformedKey)
	}
	defer clear(block.Bytes)

	switch block.Type {
	case PEMTypeRSAPrivateKey:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
		}
		return key, nil
	case PEMTypePrivateKey:
		passphrase = nil
	case PEMTypeEncryptedPrivateKey:
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: key is encrypted", ErrIncorrectPassphrase)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrMalformedKey, block.Type)
	}

	parsed, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, passphrase)
	if err != nil {
		if strings.Contains(err.Error(), "incorrect password") {
			return nil, ErrIncorrectPassphrase
		}
		// youmark/pkcs8 sometimes reports a bad password as an ASN.1 structure error
		if passphrase != nil && strings.Contains(err.Error(), "asn1: structure error") {
			return nil, ErrIncorrectPassphrase
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrMalformedKey, parsed)
	}
	return key, nil
}

// EncodePublicKeyPEM encodes an RSA public key as a PKIX PUBLIC KEY block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: PEMTypePublicKey, Bytes: der}), nil
}

// ParsePublicKeyPEM parses a PKIX or PKCS#1 RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM", ErrMalformedKey)
	}

	switch block.Type {
	case PEMTypeRSAPublicKey:
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
		}
		return pub, nil
	case PEMTypePublicKey:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrMalformedKey, parsed)
		}
		return pub, nil
	case PEMTypeCertificate:
		cert, err := ParseCertificatePEM(data)
		if err != nil {
			return nil, err
		}
		return cert.RSAPublicKey()
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrMalformedKey, block.Type)
	}
}

func looksLikePEM(data []byte) bool {
	return strings.Contains(string(data), "-----BEGIN")
}

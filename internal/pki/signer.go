package pki

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
)

// ErrNotCA is returned when a certificate that is not a signing CA is used as an issuer.
var ErrNotCA = errors.New("certificate is not a CA")

// CASigner signs certificate templates to create certificates.
// Implementations include KeySigner (in-memory, used while issuing a chain) and FileSigner
// (a CA loaded from PEM files).
type CASigner interface {
	// SignCertificate signs a certificate template for the given subject public key and returns
	// the DER-encoded certificate bytes.
	SignCertificate(random io.Reader, template *x509.Certificate, pub crypto.PublicKey) ([]byte, error)

	// GetCACertificate returns the CA certificate (public key only).
	GetCACertificate() (*x509.Certificate, error)
}

// KeySigner is a CASigner backed by an in-memory CA certificate and key.
type KeySigner struct {
	caKey  crypto.Signer
	caCert *x509.Certificate
}

// NewKeySigner checks that key matches the certificate and that the certificate may sign others.
func NewKeySigner(caCert *x509.Certificate, caKey crypto.Signer) (*KeySigner, error) {
	if !caCert.IsCA || caCert.KeyUsage&x509.KeyUsageCertSign == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotCA, caCert.Subject)
	}
	if err := verifyCertKeyPair(caCert, caKey); err != nil {
		return nil, fmt.Errorf("CA key and certificate do not match: %w", err)
	}
	return &KeySigner{caKey: caKey, caCert: caCert}, nil
}

// SignCertificate signs the template with the CA key.
func (s *KeySigner) SignCertificate(random io.Reader, template *x509.Certificate, pub crypto.PublicKey) ([]byte, error) {
	return x509.CreateCertificate(random, template, s.caCert, pub, s.caKey)
}

// GetCACertificate returns the CA certificate.
func (s *KeySigner) GetCACertificate() (*x509.Certificate, error) {
	return s.caCert, nil
}

// Destroy zeroizes the CA key when it is an RSA key.
func (s *KeySigner) Destroy() {
	if key, ok := s.caKey.(*rsa.PrivateKey); ok {
		ZeroizeKey(key)
	}
	s.caKey = nil
}

type publicKeyEqualer interface {
	Equal(crypto.PublicKey) bool
}

// verifyCertKeyPair checks that a certificate's public key matches a private key
func verifyCertKeyPair(cert *x509.Certificate, key crypto.Signer) error {
	if key == nil {
		return fmt.Errorf("private key is nil")
	}

	pub, ok := key.Public().(publicKeyEqualer)
	if !ok {
		return fmt.Errorf("unsupported private key type %T", key)
	}

	if !pub.Equal(cert.PublicKey) {
		return fmt.Errorf("public keys do not match")
	}

	return nil
}

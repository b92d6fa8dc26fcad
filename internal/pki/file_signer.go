package pki

import (
	"fmt"
	"os"
)

// FileSigner implements CASigner using a CA private key and certificate stored in PEM files.
// This is intended for local issuance from the CLI.
type FileSigner struct {
	*KeySigner
}

// NewFileSigner creates a new FileSigner from PEM-encoded key and certificate files.
// The caKeyPath must point to a PKCS#8 (optionally encrypted with passphrase) or PKCS#1 key.
// The caCertPath must point to a PEM-encoded X.509 CA certificate.
func NewFileSigner(caKeyPath, caCertPath string, passphrase []byte) (*FileSigner, error) {
	// Load CA private key
	keyData, err := os.ReadFile(caKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key file: %w", err)
	}

	caKey, err := ParsePrivateKeyPEM(keyData, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA private key: %w", err)
	}

	// Load CA certificate
	certData, err := os.ReadFile(caCertPath)
	if err != nil {
		ZeroizeKey(caKey)
		return nil, fmt.Errorf("failed to read CA cert file: %w", err)
	}

	caCert, err := ParseCertificatePEM(certData)
	if err != nil {
		ZeroizeKey(caKey)
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	signer, err := NewKeySigner(caCert.Certificate, caKey)
	if err != nil {
		ZeroizeKey(caKey)
		return nil, err
	}

	return &FileSigner{KeySigner: signer}, nil
}

package pki

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/mr-tron/base58"
)

// Fingerprint returns the base58 encoded SHA-256 of DER bytes.
func Fingerprint(der []byte) string {
	hash := sha256.Sum256(der)
	return base58.Encode(hash[:])
}

// PublicKeyFingerprint fingerprints the PKIX DER form of an RSA public key.
func PublicKeyFingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return Fingerprint(der), nil
}

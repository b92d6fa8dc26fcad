package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/wolfeidau/docsign/internal/pki"
)

// Digest returns the SHA-256 digest of content.
func Digest(content []byte) [sha256.Size]byte {
	return sha256.Sum256(content)
}

// Sign computes an RSA PKCS#1 v1.5 signature over the SHA-256 digest of content.
// Signing is deterministic: the same key and content always produce the same signature.
func Sign(content []byte, key crypto.PrivateKey, enc Encoding) (Signature, error) {
	if _, err := New(nil, enc); err != nil {
		return Signature{}, err
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok || rsaKey == nil {
		return Signature{}, fmt.Errorf("%w: unsupported private key type %T", ErrSigning, key)
	}
	if err := rsaKey.Validate(); err != nil {
		return Signature{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	digest := Digest(content)
	raw, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, digest[:])
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return New(raw, enc)
}

// SignPEM parses a PEM private key, signs content with it and zeroizes the key before returning.
func SignPEM(content, keyPEM, passphrase []byte, enc Encoding) (Signature, error) {
	key, err := pki.ParsePrivateKeyPEM(keyPEM, passphrase)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	defer pki.ZeroizeKey(key)

	return Sign(content, key, enc)
}

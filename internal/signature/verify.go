package signature

import (
	"crypto"
	"crypto/rsa"
	"fmt"

	"github.com/wolfeidau/docsign/internal/pki"
)

var (
	// ErrMalformedCertificate is returned when the verifying certificate cannot be parsed.
	ErrMalformedCertificate = pki.ErrMalformedCertificate

	// ErrMalformedKey is returned when a raw verifying key cannot be parsed.
	ErrMalformedKey = pki.ErrMalformedKey
)

// PublicKeySource yields the RSA public key a signature is checked against.
type PublicKeySource interface {
	PublicKey() (*rsa.PublicKey, error)
}

// CertificatePEM is a PEM (or DER) encoded certificate used as a key source.
type CertificatePEM []byte

// PublicKey parses the certificate and returns its subject key.
func (c CertificatePEM) PublicKey() (*rsa.PublicKey, error) {
	cert, err := pki.ParseCertificatePEM(c)
	if err != nil {
		return nil, err
	}
	pub, err := cert.RSAPublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCertificate, err)
	}
	return pub, nil
}

// PublicKeyPEM is a PEM encoded PKIX or PKCS#1 public key used as a key source.
type PublicKeyPEM []byte

// PublicKey parses the key.
func (p PublicKeyPEM) PublicKey() (*rsa.PublicKey, error) {
	return pki.ParsePublicKeyPEM(p)
}

type certificateSource struct {
	cert *pki.Certificate
}

func (c certificateSource) PublicKey() (*rsa.PublicKey, error) {
	if c.cert == nil {
		return nil, fmt.Errorf("%w: certificate is nil", ErrMalformedCertificate)
	}
	return c.cert.RSAPublicKey()
}

// FromCertificate uses an already parsed certificate as a key source.
func FromCertificate(cert *pki.Certificate) PublicKeySource {
	return certificateSource{cert: cert}
}

type rawKeySource struct {
	key *rsa.PublicKey
}

func (r rawKeySource) PublicKey() (*rsa.PublicKey, error) {
	if r.key == nil {
		return nil, fmt.Errorf("%w: public key is nil", ErrMalformedKey)
	}
	return r.key, nil
}

// FromPublicKey uses a raw RSA public key as a key source.
func FromPublicKey(pub *rsa.PublicKey) PublicKeySource {
	return rawKeySource{key: pub}
}

// Verify reports whether sig is a valid signature over the SHA-256 digest of content for the
// key supplied by src. A signature that decodes but does not match yields false and no error;
// errors are reserved for undecodable signatures and unusable keys. No chain validation is done.
func Verify(content []byte, sig Signature, src PublicKeySource) (bool, error) {
	raw, err := sig.Bytes()
	if err != nil {
		return false, err
	}

	pub, err := src.PublicKey()
	if err != nil {
		return false, err
	}

	digest := Digest(content)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return false, nil
	}
	return true, nil
}

package pki

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // RFC 5280 key identifier method 1
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"
)

var (
	// ErrInvalidValidityWindow is returned when notAfter is not after notBefore.
	ErrInvalidValidityWindow = errors.New("invalid validity window")

	// ErrInvalidKeyUsage is returned when an end-entity certificate requests certificate signing.
	ErrInvalidKeyUsage = errors.New("invalid key usage")

	// ErrCertificateIssue is returned when the certificate body cannot be signed.
	ErrCertificateIssue = errors.New("certificate issuance failed")
)

// Key usage sets applied by the chain issuer.
const (
	CAKeyUsage   = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	LeafKeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
)

// serialLimit bounds serial numbers to 128 bits.
var serialLimit = new(big.Int).Lsh(big.NewInt(1), 128)

// Validity is the [NotBefore, NotAfter] window of a certificate.
type Validity struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// ValidFor returns a window starting at from and lasting d.
func ValidFor(from time.Time, d time.Duration) Validity {
	return Validity{NotBefore: from, NotAfter: from.Add(d)}
}

// Validate rejects windows where NotAfter is not strictly after NotBefore.
func (v Validity) Validate() error {
	if v.NotBefore.IsZero() || v.NotAfter.IsZero() {
		return fmt.Errorf("%w: both bounds are required", ErrInvalidValidityWindow)
	}
	if !v.NotAfter.After(v.NotBefore) {
		return fmt.Errorf("%w: not after %s is not later than not before %s",
			ErrInvalidValidityWindow, v.NotAfter.Format(time.RFC3339), v.NotBefore.Format(time.RFC3339))
	}
	return nil
}

// Certificate is an issued X.509 certificate.
type Certificate struct {
	*x509.Certificate
}

// SerialHex returns the serial number as lower-case hex.
func (c *Certificate) SerialHex() string {
	return c.SerialNumber.Text(16)
}

// SubjectIdentity returns the subject as an Identity.
func (c *Certificate) SubjectIdentity() Identity {
	return IdentityFromName(c.Subject)
}

// IssuerIdentity returns the issuer as an Identity.
func (c *Certificate) IssuerIdentity() Identity {
	return IdentityFromName(c.Issuer)
}

// RSAPublicKey returns the subject public key.
func (c *Certificate) RSAPublicKey() (*rsa.PublicKey, error) {
	pub, ok := c.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrMalformedKey, c.PublicKey)
	}
	return pub, nil
}

// SelfSigned reports whether subject equals issuer and the signature verifies with the
// certificate's own key.
func (c *Certificate) SelfSigned() bool {
	if !bytes.Equal(c.RawSubject, c.RawIssuer) {
		return false
	}
	return c.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature) == nil
}

// PEM returns the certificate as a CERTIFICATE block.
func (c *Certificate) PEM() []byte {
	return EncodeCertificatePEM(c.Raw)
}

// CertificateRequest describes a certificate to build.
type CertificateRequest struct {
	Subject   Identity
	PublicKey *rsa.PublicKey
	Validity  Validity
	IsCA      bool
	// MaxPathLen applies to CA certificates only; -1 leaves it unconstrained.
	MaxPathLen int
	KeyUsage   x509.KeyUsage
	Role       Role
	OwnerID    string

	// Issuer signs the certificate. When nil the certificate is self-signed with SigningKey.
	Issuer     CASigner
	SigningKey crypto.Signer
}

func (r CertificateRequest) validate() error {
	if err := r.Subject.Validate(); err != nil {
		return err
	}
	if r.PublicKey == nil {
		return fmt.Errorf("%w: subject public key is required", ErrMalformedKey)
	}
	if err := r.Validity.Validate(); err != nil {
		return err
	}
	if !r.IsCA && r.KeyUsage&x509.KeyUsageCertSign != 0 {
		return fmt.Errorf("%w: end-entity certificates cannot sign certificates", ErrInvalidKeyUsage)
	}
	if r.Issuer == nil && r.SigningKey == nil {
		return fmt.Errorf("%w: issuer or signing key is required", ErrCertificateIssue)
	}
	return nil
}

// BuildCertificate creates and signs a certificate with SHA-256 with RSA.
// Every call draws a fresh 128-bit serial from random.
func BuildCertificate(random io.Reader, req CertificateRequest) (*Certificate, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	template, err := newTemplate(random, req)
	if err != nil {
		return nil, err
	}

	var der []byte
	if req.Issuer != nil {
		der, err = req.Issuer.SignCertificate(random, template, req.PublicKey)
	} else {
		if verr := verifyCertKeyPair(&x509.Certificate{PublicKey: req.PublicKey}, req.SigningKey); verr != nil {
			return nil, fmt.Errorf("%w: self-signed key mismatch: %w", ErrCertificateIssue, verr)
		}
		der, err = x509.CreateCertificate(random, template, template, req.PublicKey, req.SigningKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateIssue, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateIssue, err)
	}

	return &Certificate{Certificate: cert}, nil
}

func newTemplate(random io.Reader, req CertificateRequest) (*x509.Certificate, error) {
	serial, err := newSerial(random)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               req.Subject.Name(),
		NotBefore:             req.Validity.NotBefore,
		NotAfter:              req.Validity.NotAfter,
		KeyUsage:              req.KeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  req.IsCA,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		SubjectKeyId:          subjectKeyID(req.PublicKey),
	}

	if req.IsCA {
		template.MaxPathLen = req.MaxPathLen
		template.MaxPathLenZero = req.MaxPathLen == 0
	}

	if req.Role != "" {
		ext, err := stringExtension(OIDCertificateRole, string(req.Role))
		if err != nil {
			return nil, err
		}
		template.ExtraExtensions = append(template.ExtraExtensions, ext)
	}

	if req.OwnerID != "" {
		ext, err := stringExtension(OIDOwnerID, req.OwnerID)
		if err != nil {
			return nil, err
		}
		template.ExtraExtensions = append(template.ExtraExtensions, ext)
	}

	return template, nil
}

func newSerial(random io.Reader) (*big.Int, error) {
	for {
		serial, err := rand.Int(random, serialLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate serial number: %w", ErrKeyGeneration, err)
		}
		if serial.Sign() > 0 {
			return serial, nil
		}
	}
}

func subjectKeyID(pub *rsa.PublicKey) []byte {
	sum := sha1.Sum(x509.MarshalPKCS1PublicKey(pub)) //nolint:gosec
	return sum[:]
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/docsign/internal/pki"
)

// CertMetadata represents metadata about an issued certificate
type CertMetadata struct {
	SerialNumber   string    `dynamodbav:"serial_number"`
	OwnerID        string    `dynamodbav:"owner_id"`
	Role           string    `dynamodbav:"role"`
	Fingerprint    string    `dynamodbav:"fingerprint"`
	SubjectDN      string    `dynamodbav:"subject_dn"`
	IssuerDN       string    `dynamodbav:"issuer_dn"`
	IsCA           bool      `dynamodbav:"is_ca"`
	CertificatePEM string    `dynamodbav:"certificate_pem"`
	IssuedAt       time.Time `dynamodbav:"issued_at"`
	ExpiresAt      time.Time `dynamodbav:"expires_at"`
	Description    string    `dynamodbav:"description,omitempty"`
	TTL            int64     `dynamodbav:"ttl"` // Unix seconds for DynamoDB TTL
}

// CertificateStore is the registry of issued certificates
type CertificateStore interface {
	// Get retrieves certificate metadata by serial number
	Get(ctx context.Context, serialNumber string) (*CertMetadata, error)

	// GetByOwner retrieves all certificates issued to a user
	GetByOwner(ctx context.Context, ownerID string) ([]*CertMetadata, error)

	// GetByFingerprint retrieves certificate by SHA-256 fingerprint
	GetByFingerprint(ctx context.Context, fingerprint string) (*CertMetadata, error)

	// Register stores certificate metadata
	Register(ctx context.Context, cert *CertMetadata) error

	// Delete removes a registration. Deleting an unknown serial is not an error.
	Delete(ctx context.Context, serialNumber string) error

	// List returns registered certificates
	List(ctx context.Context, opts ListCertificatesOptions) ([]*CertMetadata, error)
}

// ListCertificatesOptions specifies filters for listing certificates
type ListCertificatesOptions struct {
	OwnerID string // Filter by owner (empty = all)
	Limit   int    // Max results (0 = default)
}

// Errors
var (
	ErrCertNotFound      = errors.New("certificate not found")
	ErrCertAlreadyExists = errors.New("certificate already exists")
)

// NewCertMetadata creates CertMetadata from an issued certificate
func NewCertMetadata(cert *pki.Certificate, ownerID string) *CertMetadata {
	role, _ := pki.ExtractRole(cert.Certificate)

	if ownerID == "" {
		ownerID, _ = pki.OwnerOrCommonName(cert.Certificate)
	}

	// TTL: 30 days after expiry
	ttl := cert.NotAfter.Add(30 * 24 * time.Hour).Unix()

	return &CertMetadata{
		SerialNumber:   cert.SerialHex(),
		OwnerID:        ownerID,
		Role:           string(role),
		Fingerprint:    pki.Fingerprint(cert.Raw),
		SubjectDN:      cert.Subject.String(),
		IssuerDN:       cert.Issuer.String(),
		IsCA:           cert.IsCA,
		CertificatePEM: string(cert.PEM()),
		IssuedAt:       cert.NotBefore,
		ExpiresAt:      cert.NotAfter,
		TTL:            ttl,
	}
}

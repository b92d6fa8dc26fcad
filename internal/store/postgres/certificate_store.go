package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/store"
)

const certificateColumns = `
	serial_number, owner_id, role, fingerprint, subject_dn, issuer_dn,
	is_ca, certificate_pem, issued_at, expires_at, description
`

// CertificateStore implements store.CertificateStore using PostgreSQL.
type CertificateStore struct {
	pool *pgxpool.Pool
}

// NewCertificateStore creates a new PostgreSQL-backed certificate store.
func NewCertificateStore(pool *pgxpool.Pool) *CertificateStore {
	return &CertificateStore{
		pool: pool,
	}
}

// Get retrieves certificate metadata by serial number.
func (s *CertificateStore) Get(ctx context.Context, serialNumber string) (*store.CertMetadata, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE serial_number = $1`
	return s.getOne(ctx, query, serialNumber)
}

// GetByFingerprint retrieves certificate metadata by fingerprint.
func (s *CertificateStore) GetByFingerprint(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE fingerprint = $1`
	return s.getOne(ctx, query, fingerprint)
}

// GetByOwner retrieves all certificates issued to an owner.
func (s *CertificateStore) GetByOwner(ctx context.Context, ownerID string) ([]*store.CertMetadata, error) {
	return s.List(ctx, store.ListCertificatesOptions{OwnerID: ownerID})
}

// Register stores certificate metadata.
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		cert.SerialNumber,
		cert.OwnerID,
		cert.Role,
		cert.Fingerprint,
		cert.SubjectDN,
		cert.IssuerDN,
		cert.IsCA,
		cert.CertificatePEM,
		cert.IssuedAt,
		cert.ExpiresAt,
		cert.Description,
	)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrCertAlreadyExists) {
			return mapped
		}
		return fmt.Errorf("failed to register certificate: %w", mapped)
	}

	log.Debug().
		Str("serial_number", cert.SerialNumber).
		Str("owner_id", cert.OwnerID).
		Str("fingerprint", cert.Fingerprint).
		Msg("Registered certificate")

	return nil
}

// Delete removes certificate metadata by serial number.
func (s *CertificateStore) Delete(ctx context.Context, serialNumber string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM certificates WHERE serial_number = $1`, serialNumber); err != nil {
		return fmt.Errorf("failed to delete certificate: %w", mapPostgresError(err))
	}

	log.Debug().Str("serial_number", serialNumber).Msg("Deleted certificate")

	return nil
}

// List returns certificates, most recently issued first.
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY issued_at DESC, serial_number
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, opts.OwnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", mapPostgresError(err))
	}
	defer rows.Close()

	certs := make([]*store.CertMetadata, 0)
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate certificates: %w", mapPostgresError(err))
	}

	return certs, nil
}

func (s *CertificateStore) getOne(ctx context.Context, query string, arg string) (*store.CertMetadata, error) {
	cert, err := scanCertificate(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCertNotFound
		}
		return nil, fmt.Errorf("failed to get certificate: %w", mapPostgresError(err))
	}
	return cert, nil
}

func scanCertificate(row pgx.Row) (*store.CertMetadata, error) {
	var cert store.CertMetadata
	err := row.Scan(
		&cert.SerialNumber,
		&cert.OwnerID,
		&cert.Role,
		&cert.Fingerprint,
		&cert.SubjectDN,
		&cert.IssuerDN,
		&cert.IsCA,
		&cert.CertificatePEM,
		&cert.IssuedAt,
		&cert.ExpiresAt,
		&cert.Description,
	)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

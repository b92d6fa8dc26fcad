package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/signature"
	"github.com/wolfeidau/docsign/internal/store"
)

const documentColumns = `
	document_id, title, content, owner_id, created_at,
	signature, signature_encoding, certificate_pem, signed_by, signed_at
`

// DocumentStore implements store.DocumentStore using PostgreSQL.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore creates a new PostgreSQL-backed document store.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{
		pool: pool,
	}
}

// Create inserts a new unsigned document.
func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (document_id, title, content, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		doc.DocumentID,
		doc.Title,
		doc.Content,
		doc.OwnerID,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("document_id", doc.DocumentID.String()).
		Str("owner_id", doc.OwnerID).
		Msg("Created document")

	return nil
}

// Get retrieves a document by ID.
func (s *DocumentStore) Get(ctx context.Context, documentID uuid.UUID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE document_id = $1`

	doc, err := scanDocument(s.pool.QueryRow(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", mapPostgresError(err))
	}

	return doc, nil
}

// List returns documents newest first, optionally filtered by owner.
func (s *DocumentStore) List(ctx context.Context, opts store.ListDocumentsOptions) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY document_id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, opts.OwnerID, opts.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", mapPostgresError(err))
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", mapPostgresError(err))
	}

	return docs, nil
}

// SetSignature sets the signature only while the row has none. The conditional update is the
// single point that decides which of several concurrent signers wins.
func (s *DocumentStore) SetSignature(ctx context.Context, documentID uuid.UUID, rec models.SignatureRecord) (*models.Document, error) {
	query := `
		UPDATE documents
		SET signature = $2, signature_encoding = $3, certificate_pem = $4, signed_by = $5, signed_at = $6
		WHERE document_id = $1 AND signature IS NULL
		RETURNING ` + documentColumns

	doc, err := scanDocument(s.pool.QueryRow(ctx, query,
		documentID,
		rec.Signature.Value,
		string(rec.Signature.Encoding),
		rec.CertificatePEM,
		rec.SignedBy,
		rec.SignedAt.UTC(),
	))
	if err == nil {
		log.Debug().
			Str("document_id", documentID.String()).
			Str("signed_by", rec.SignedBy).
			Msg("Signed document")
		return doc, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to sign document: %w", mapPostgresError(err))
	}

	// No row updated: either missing or already signed
	if _, err := s.Get(ctx, documentID); err != nil {
		return nil, err
	}
	return nil, models.ErrAlreadySigned
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc            models.Document
		sigValue       *string
		sigEncoding    *string
		certificatePEM *string
		signedBy       *string
	)

	err := row.Scan(
		&doc.DocumentID,
		&doc.Title,
		&doc.Content,
		&doc.OwnerID,
		&doc.CreatedAt,
		&sigValue,
		&sigEncoding,
		&certificatePEM,
		&signedBy,
		&doc.SignedAt,
	)
	if err != nil {
		return nil, err
	}

	if sigValue != nil {
		enc := signature.EncodingBase64
		if sigEncoding != nil && *sigEncoding != "" {
			enc = signature.Encoding(*sigEncoding)
		}
		doc.Signature = &signature.Signature{Value: *sigValue, Encoding: enc}
	}
	if certificatePEM != nil {
		doc.CertificatePEM = *certificatePEM
	}
	if signedBy != nil {
		doc.SignedBy = *signedBy
	}

	return &doc, nil
}

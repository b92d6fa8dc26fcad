package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/docsign/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrThrottled        = errors.New("AWS request throttled")
)

// DocumentStore persists documents and owns the single-signature transition.
type DocumentStore interface {
	// Create stores a new unsigned document
	Create(ctx context.Context, doc *models.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, documentID uuid.UUID) (*models.Document, error)

	// List returns documents, newest first
	List(ctx context.Context, opts ListDocumentsOptions) ([]*models.Document, error)

	// SetSignature atomically moves a document from unsigned to signed.
	// Returns models.ErrAlreadySigned, leaving the stored signature untouched, when a signature is
	// already present, and ErrDocumentNotFound when the document does not exist.
	SetSignature(ctx context.Context, documentID uuid.UUID, rec models.SignatureRecord) (*models.Document, error)
}

// ListDocumentsOptions specifies filters for listing documents
type ListDocumentsOptions struct {
	OwnerID string // Filter by owner (empty = all)
	Limit   int    // Max results (0 = default)
}

// DefaultListLimit caps list results when no limit is given.
const DefaultListLimit = 100

// EffectiveLimit returns the limit to apply.
func (o ListDocumentsOptions) EffectiveLimit() int {
	if o.Limit <= 0 || o.Limit > DefaultListLimit {
		return DefaultListLimit
	}
	return o.Limit
}

// UserStore manages users provisioned from the identity provider.
type UserStore interface {
	// Get retrieves a user by ID
	Get(ctx context.Context, userID string) (*models.User, error)

	// Ensure creates the user if it does not exist and returns the stored record
	Ensure(ctx context.Context, user *models.User) (*models.User, error)

	// SetPublicKey records the public half of an issued signing identity
	SetPublicKey(ctx context.Context, userID, publicKeyPEM, fingerprint string) error

	// ClearPublicKey removes the signing identity from the user
	ClearPublicKey(ctx context.Context, userID string) error
}

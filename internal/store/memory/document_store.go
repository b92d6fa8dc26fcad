package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/store"
)

// DocumentStore is an in-memory implementation of store.DocumentStore
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*models.Document
}

// NewDocumentStore creates a new in-memory document store
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[uuid.UUID]*models.Document),
	}
}

// Create stores a new document
func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.DocumentID] = doc.Clone()

	log.Debug().
		Str("document_id", doc.DocumentID.String()).
		Str("owner_id", doc.OwnerID).
		Msg("document created")

	return nil
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, documentID uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[documentID]
	if !exists {
		return nil, store.ErrDocumentNotFound
	}

	return doc.Clone(), nil
}

// List returns documents newest first
func (s *DocumentStore) List(ctx context.Context, opts store.ListDocumentsOptions) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if opts.OwnerID != "" && doc.OwnerID != opts.OwnerID {
			continue
		}
		result = append(result, doc.Clone())
	}

	// UUIDv7 sorts by creation time
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocumentID.String() > result[j].DocumentID.String()
	})

	if limit := opts.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// SetSignature applies the signature only if the document has none
func (s *DocumentStore) SetSignature(ctx context.Context, documentID uuid.UUID, rec models.SignatureRecord) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[documentID]
	if !exists {
		return nil, store.ErrDocumentNotFound
	}

	if doc.State() == models.DocumentSigned {
		return nil, models.ErrAlreadySigned
	}

	rec.Apply(doc)

	log.Debug().
		Str("document_id", documentID.String()).
		Str("signed_by", rec.SignedBy).
		Msg("document signed")

	return doc.Clone(), nil
}

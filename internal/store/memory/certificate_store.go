package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wolfeidau/docsign/internal/store"
)

// CertificateStore is an in-memory implementation of store.CertificateStore for development and testing
type CertificateStore struct {
	mu                 sync.RWMutex
	certs              map[string]*store.CertMetadata   // indexed by serial number
	certsByOwner       map[string][]*store.CertMetadata // indexed by owner ID
	certsByFingerprint map[string]*store.CertMetadata   // indexed by fingerprint
}

// NewCertificateStore creates a new in-memory certificate store
func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		certs:              make(map[string]*store.CertMetadata),
		certsByOwner:       make(map[string][]*store.CertMetadata),
		certsByFingerprint: make(map[string]*store.CertMetadata),
	}
}

// Get retrieves certificate metadata by serial number
func (s *CertificateStore) Get(ctx context.Context, serialNumber string) (*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certs[serialNumber]
	if !exists {
		return nil, store.ErrCertNotFound
	}

	return copyCert(cert), nil
}

// GetByOwner retrieves all certificates issued to an owner
func (s *CertificateStore) GetByOwner(ctx context.Context, ownerID string) ([]*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	certs := s.certsByOwner[ownerID]

	result := make([]*store.CertMetadata, len(certs))
	for i, cert := range certs {
		result[i] = copyCert(cert)
	}

	return result, nil
}

// GetByFingerprint retrieves certificate by SHA-256 fingerprint
func (s *CertificateStore) GetByFingerprint(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certsByFingerprint[fingerprint]
	if !exists {
		return nil, store.ErrCertNotFound
	}

	return copyCert(cert), nil
}

// Register stores certificate metadata
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.SerialNumber]; exists {
		return store.ErrCertAlreadyExists
	}

	stored := copyCert(cert)

	s.certs[cert.SerialNumber] = stored
	s.certsByFingerprint[cert.Fingerprint] = stored
	s.certsByOwner[cert.OwnerID] = append(s.certsByOwner[cert.OwnerID], stored)

	return nil
}

// Delete removes certificate metadata by serial number
func (s *CertificateStore) Delete(ctx context.Context, serialNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, exists := s.certs[serialNumber]
	if !exists {
		return nil
	}

	delete(s.certs, serialNumber)
	if s.certsByFingerprint[cert.Fingerprint] == cert {
		delete(s.certsByFingerprint, cert.Fingerprint)
	}

	owned := s.certsByOwner[cert.OwnerID]
	for i, c := range owned {
		if c == cert {
			s.certsByOwner[cert.OwnerID] = append(owned[:i:i], owned[i+1:]...)
			break
		}
	}
	if len(s.certsByOwner[cert.OwnerID]) == 0 {
		delete(s.certsByOwner, cert.OwnerID)
	}

	return nil
}

// List returns registered certificates, most recently issued first
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*store.CertMetadata
	if opts.OwnerID != "" {
		candidates = s.certsByOwner[opts.OwnerID]
	} else {
		candidates = make([]*store.CertMetadata, 0, len(s.certs))
		for _, cert := range s.certs {
			candidates = append(candidates, cert)
		}
	}

	result := make([]*store.CertMetadata, 0, len(candidates))
	for _, cert := range candidates {
		result = append(result, copyCert(cert))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].SerialNumber < result[j].SerialNumber
		}
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

func copyCert(cert *store.CertMetadata) *store.CertMetadata {
	c := *cert
	return &c
}

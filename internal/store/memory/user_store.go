package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/store"
)

// UserStore is an in-memory implementation of store.UserStore
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
	now   func() time.Time
}

// NewUserStore creates a new in-memory user store
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]*models.User),
		now:   time.Now,
	}
}

// Get retrieves a user by ID
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	u := *user
	return &u, nil
}

// Ensure creates the user if missing and returns the stored record
func (s *UserStore) Ensure(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.users[user.UserID]; exists {
		u := *existing
		return &u, nil
	}

	now := s.now().UTC()
	stored := *user
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.users[user.UserID] = &stored

	u := stored
	return &u, nil
}

// SetPublicKey records the user's public key
func (s *UserStore) SetPublicKey(ctx context.Context, userID, publicKeyPEM, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}

	user.PublicKeyPEM = publicKeyPEM
	user.Fingerprint = fingerprint
	user.UpdatedAt = s.now().UTC()

	return nil
}

// ClearPublicKey removes the user's public key
func (s *UserStore) ClearPublicKey(ctx context.Context, userID string) error {
	return s.SetPublicKey(ctx, userID, "", "")
}

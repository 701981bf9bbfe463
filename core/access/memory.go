package access

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryPrincipalStore is an in-process principal store for unit tests
// and for development mode without a database.
type MemoryPrincipalStore struct {
	mutex   sync.RWMutex
	byID    map[uuid.UUID]*Principal
	byEmail map[string]uuid.UUID
}

// NewMemoryPrincipalStore creates an empty in-memory principal store.
func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		byID:    make(map[uuid.UUID]*Principal),
		byEmail: make(map[string]uuid.UUID),
	}
}

// Create persists a new principal, failing with ErrDuplicateHandle if
// the email is taken. The principal gets a fresh id.
func (s *MemoryPrincipalStore) Create(ctx context.Context, principal *Principal) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.byEmail[principal.Email]; ok {
		return ErrDuplicateHandle
	}
	principal.UserID = uuid.New()
	stored := *principal
	s.byID[principal.UserID] = &stored
	s.byEmail[principal.Email] = principal.UserID
	return nil
}

// GetByEmail returns the principal with the given email.
func (s *MemoryPrincipalStore) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNoSuchPrincipal
	}
	principal := *s.byID[id]
	return &principal, nil
}

// GetByID returns the principal with the given id.
func (s *MemoryPrincipalStore) GetByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stored, ok := s.byID[id]
	if !ok {
		return nil, ErrNoSuchPrincipal
	}
	principal := *stored
	return &principal, nil
}

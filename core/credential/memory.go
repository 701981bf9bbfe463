package credential

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process credential store. It is the store of
// choice for unit tests and for development mode without a database.
type MemoryStore struct {
	mutex       sync.Mutex
	credentials map[string]Credential
	ttl         time.Duration
	now         func() time.Time
}

// NewMemoryStore creates an in-memory credential store. A zero ttl
// disables token expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]Credential),
		ttl:         ttl,
		now:         time.Now,
	}
}

// WithClock replaces the store's time source. For tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Issue generates and records a new token for the principal and device.
func (s *MemoryStore) Issue(ctx context.Context, principalID uuid.UUID, deviceName string) (string, error) {
	token, checksum, err := newToken()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	credential := Credential{
		Checksum:    checksum,
		PrincipalID: principalID,
		DeviceName:  deviceName,
		CreatedAt:   now,
	}
	if s.ttl > 0 {
		credential.ExpiresAt = now.Add(s.ttl)
	}
	s.mutex.Lock()
	s.credentials[checksum] = credential
	s.mutex.Unlock()
	return token, nil
}

// Validate resolves the token to its principal, or fails with
// ErrInvalidCredential. Expired credentials are evicted on lookup.
func (s *MemoryStore) Validate(ctx context.Context, token string) (uuid.UUID, error) {
	checksum := tokenChecksum(token)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	credential, ok := s.credentials[checksum]
	if !ok {
		return uuid.UUID{}, ErrInvalidCredential
	}
	if credential.Expired(s.now()) {
		delete(s.credentials, checksum)
		return uuid.UUID{}, ErrInvalidCredential
	}
	return credential.PrincipalID, nil
}

// Revoke removes the binding for the token. Idempotent.
func (s *MemoryStore) Revoke(ctx context.Context, token string) error {
	checksum := tokenChecksum(token)
	s.mutex.Lock()
	delete(s.credentials, checksum)
	s.mutex.Unlock()
	return nil
}

// RevokeAllForPrincipal removes all bindings for the principal.
func (s *MemoryStore) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) error {
	s.mutex.Lock()
	for checksum, credential := range s.credentials {
		if credential.PrincipalID == principalID {
			delete(s.credentials, checksum)
		}
	}
	s.mutex.Unlock()
	return nil
}

// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by record stores when no record exists for
// the requested identifier.
var ErrNotFound = errors.New("not found")

// Record is a storable resource record. The store owns the fields "id",
// "created_at" and "updated_at".
type Record map[string]interface{}

// RecordStore is the persistence contract of the resource layer: a
// storable record with a fillable field set and a primary identifier.
// Everything else about persistence is an external concern.
type RecordStore interface {
	// EnsureResource prepares storage for the named resource. Called
	// once per resource at boot.
	EnsureResource(ctx context.Context, resource string) error
	// Insert stores a new record and returns it with identifier and
	// timestamps added.
	Insert(ctx context.Context, resource string, record Record) (Record, error)
	// Get returns the record with the given identifier, or ErrNotFound.
	Get(ctx context.Context, resource string, id uuid.UUID) (Record, error)
	// Update replaces the stored fields of the record with the given
	// identifier, or fails with ErrNotFound.
	Update(ctx context.Context, resource string, id uuid.UUID, record Record) (Record, error)
	// Delete removes the record with the given identifier, or fails
	// with ErrNotFound.
	Delete(ctx context.Context, resource string, id uuid.UUID) error
	// List returns all records of the resource in creation order.
	List(ctx context.Context, resource string) ([]Record, error)
}

type memoryRecord struct {
	record    Record
	createdAt time.Time
	sequence  int
}

// MemoryRecordStore is an in-process record store for unit tests and
// for development mode without a database.
type MemoryRecordStore struct {
	mutex     sync.RWMutex
	resources map[string]map[uuid.UUID]memoryRecord
	sequence  int
	now       func() time.Time
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		resources: make(map[string]map[uuid.UUID]memoryRecord),
		now:       time.Now,
	}
}

// EnsureResource prepares storage for the named resource.
func (s *MemoryRecordStore) EnsureResource(ctx context.Context, resource string) error {
	s.mutex.Lock()
	if _, ok := s.resources[resource]; !ok {
		s.resources[resource] = make(map[uuid.UUID]memoryRecord)
	}
	s.mutex.Unlock()
	return nil
}

func cloneRecord(record Record) Record {
	clone := make(Record, len(record))
	for key, value := range record {
		clone[key] = value
	}
	return clone
}

// Insert stores a new record.
func (s *MemoryRecordStore) Insert(ctx context.Context, resource string, record Record) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	records, ok := s.resources[resource]
	if !ok {
		records = make(map[uuid.UUID]memoryRecord)
		s.resources[resource] = records
	}
	id := uuid.New()
	now := s.now().UTC()
	stored := cloneRecord(record)
	stored["id"] = id.String()
	stored["created_at"] = now.Format(time.RFC3339)
	stored["updated_at"] = now.Format(time.RFC3339)
	s.sequence++
	records[id] = memoryRecord{record: stored, createdAt: now, sequence: s.sequence}
	return cloneRecord(stored), nil
}

// Get returns the record with the given identifier.
func (s *MemoryRecordStore) Get(ctx context.Context, resource string, id uuid.UUID) (Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stored, ok := s.resources[resource][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(stored.record), nil
}

// Update replaces the stored fields of the record.
func (s *MemoryRecordStore) Update(ctx context.Context, resource string, id uuid.UUID, record Record) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	stored, ok := s.resources[resource][id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := cloneRecord(record)
	updated["id"] = stored.record["id"]
	updated["created_at"] = stored.record["created_at"]
	updated["updated_at"] = s.now().UTC().Format(time.RFC3339)
	stored.record = updated
	s.resources[resource][id] = stored
	return cloneRecord(updated), nil
}

// Delete removes the record with the given identifier.
func (s *MemoryRecordStore) Delete(ctx context.Context, resource string, id uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.resources[resource][id]; !ok {
		return ErrNotFound
	}
	delete(s.resources[resource], id)
	return nil
}

// List returns all records of the resource in creation order.
func (s *MemoryRecordStore) List(ctx context.Context, resource string) ([]Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stored := make([]memoryRecord, 0, len(s.resources[resource]))
	for _, record := range s.resources[resource] {
		stored = append(stored, record)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].sequence < stored[j].sequence })
	records := make([]Record, 0, len(stored))
	for _, record := range stored {
		records = append(records, cloneRecord(record.record))
	}
	return records, nil
}

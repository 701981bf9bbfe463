// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/google/uuid"

	"github.com/carevine/carevine/core/csql"
)

// PostgresRecordStore is a record store backed by one postgres table per
// resource in the backend's schema. The record document is stored as a
// single JSON column; identifier and timestamps are proper columns so
// listing stays in creation order.
type PostgresRecordStore struct {
	db *csql.DB
}

// NewPostgresRecordStore returns a record store on the given database.
func NewPostgresRecordStore(db *csql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// EnsureResource creates the resource table if it does not exist yet.
func (s *PostgresRecordStore) EnsureResource(ctx context.Context, resource string) error {
	_, err := s.db.ExecContext(ctx, `CREATE table IF NOT EXISTS `+s.db.Schema+`."`+resource+`"
(id uuid NOT NULL DEFAULT uuid_generate_v4(),
doc json NOT NULL,
created_at timestamp NOT NULL DEFAULT now(),
updated_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(id)
);`)
	if err != nil {
		return fmt.Errorf("cannot create table for resource %s: %w", resource, err)
	}
	return nil
}

func (s *PostgresRecordStore) compose(doc []byte, id uuid.UUID, createdAt, updatedAt time.Time) (Record, error) {
	record := Record{}
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, err
	}
	record["id"] = id.String()
	record["created_at"] = createdAt.UTC().Format(time.RFC3339)
	record["updated_at"] = updatedAt.UTC().Format(time.RFC3339)
	return record, nil
}

// Insert stores a new record.
func (s *PostgresRecordStore) Insert(ctx context.Context, resource string, record Record) (Record, error) {
	doc, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var id uuid.UUID
	var createdAt, updatedAt time.Time
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."`+resource+`"(doc) VALUES($1) RETURNING id, created_at, updated_at;`,
		string(doc)).Scan(&id, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return s.compose(doc, id, createdAt, updatedAt)
}

// Get returns the record with the given identifier.
func (s *PostgresRecordStore) Get(ctx context.Context, resource string, id uuid.UUID) (Record, error) {
	var doc []byte
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, created_at, updated_at FROM `+s.db.Schema+`."`+resource+`" WHERE id=$1;`,
		id).Scan(&doc, &createdAt, &updatedAt)
	if err == csql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.compose(doc, id, createdAt, updatedAt)
}

// Update replaces the stored fields of the record.
func (s *PostgresRecordStore) Update(ctx context.Context, resource string, id uuid.UUID, record Record) (Record, error) {
	doc, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var createdAt, updatedAt time.Time
	err = s.db.QueryRowContext(ctx,
		`UPDATE `+s.db.Schema+`."`+resource+`" SET doc=$2, updated_at=now() WHERE id=$1 RETURNING created_at, updated_at;`,
		id, string(doc)).Scan(&createdAt, &updatedAt)
	if err == csql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.compose(doc, id, createdAt, updatedAt)
}

// Delete removes the record with the given identifier.
func (s *PostgresRecordStore) Delete(ctx context.Context, resource string, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Schema+`."`+resource+`" WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all records of the resource in creation order.
func (s *PostgresRecordStore) List(ctx context.Context, resource string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc, created_at, updated_at FROM `+s.db.Schema+`."`+resource+`" ORDER BY created_at, id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var id uuid.UUID
		var doc []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &doc, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		record, err := s.compose(doc, id, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

package credential

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carevine/carevine/core/csql"
)

// PostgresStore is a credential store backed by a postgres table in the
// backend's schema. Tokens survive process restarts.
type PostgresStore struct {
	db  *csql.DB
	ttl time.Duration
}

// NewPostgresStore creates the credential table if it does not exist yet
// and returns a store for it. A zero ttl disables token expiry.
func NewPostgresStore(db *csql.DB, ttl time.Duration) (*PostgresStore, error) {
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_credential_"
(checksum varchar NOT NULL,
principal_id uuid NOT NULL,
device_name varchar NOT NULL,
created_at timestamp NOT NULL,
expires_at timestamp,
PRIMARY KEY(checksum)
);`)
	if err != nil {
		return nil, fmt.Errorf("cannot create credential table: %w", err)
	}
	return &PostgresStore{db: db, ttl: ttl}, nil
}

// Issue generates and records a new token for the principal and device.
func (s *PostgresStore) Issue(ctx context.Context, principalID uuid.UUID, deviceName string) (string, error) {
	token, checksum, err := newToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	var expiresAt sql.NullTime
	if s.ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(s.ttl), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Schema+`."_credential_"(checksum,principal_id,device_name,created_at,expires_at)
VALUES($1,$2,$3,$4,$5);`,
		checksum, principalID, deviceName, now, expiresAt)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Validate resolves the token to its principal, or fails with
// ErrInvalidCredential. Expired credentials are deleted on lookup.
func (s *PostgresStore) Validate(ctx context.Context, token string) (uuid.UUID, error) {
	checksum := tokenChecksum(token)
	var principalID uuid.UUID
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT principal_id, expires_at FROM `+s.db.Schema+`."_credential_" WHERE checksum=$1;`,
		checksum).Scan(&principalID, &expiresAt)
	if err == csql.ErrNoRows {
		return uuid.UUID{}, ErrInvalidCredential
	}
	if err != nil {
		return uuid.UUID{}, err
	}
	if expiresAt.Valid && time.Now().UTC().After(expiresAt.Time) {
		s.db.ExecContext(ctx,
			`DELETE FROM `+s.db.Schema+`."_credential_" WHERE checksum=$1;`, checksum)
		return uuid.UUID{}, ErrInvalidCredential
	}
	return principalID, nil
}

// Revoke removes the binding for the token. Idempotent.
func (s *PostgresStore) Revoke(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Schema+`."_credential_" WHERE checksum=$1;`,
		tokenChecksum(token))
	return err
}

// RevokeAllForPrincipal removes all bindings for the principal.
func (s *PostgresStore) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Schema+`."_credential_" WHERE principal_id=$1;`,
		principalID)
	return err
}

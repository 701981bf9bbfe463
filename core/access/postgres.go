package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/carevine/carevine/core/csql"
)

// PostgresPrincipalStore is a principal store backed by a postgres table
// in the backend's schema.
type PostgresPrincipalStore struct {
	db *csql.DB
}

// NewPostgresPrincipalStore creates the principal table if it does not
// exist yet and returns a store for it. Email uniqueness is enforced by
// the database.
func NewPostgresPrincipalStore(db *csql.DB) (*PostgresPrincipalStore, error) {
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_principal_"
(user_id uuid NOT NULL DEFAULT uuid_generate_v4(),
name varchar NOT NULL,
email varchar NOT NULL UNIQUE,
password_hash bytea NOT NULL,
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(user_id)
);`)
	if err != nil {
		return nil, fmt.Errorf("cannot create principal table: %w", err)
	}
	return &PostgresPrincipalStore{db: db}, nil
}

// Create persists a new principal, failing with ErrDuplicateHandle if
// the email is taken.
func (s *PostgresPrincipalStore) Create(ctx context.Context, principal *Principal) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`."_principal_"(name,email,password_hash)
VALUES($1,$2,$3) RETURNING user_id;`,
		principal.Name, principal.Email, principal.passwordHash).Scan(&principal.UserID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateHandle
		}
		// some drivers surface the constraint name only in the message
		if strings.Contains(err.Error(), "unique") {
			return ErrDuplicateHandle
		}
		return err
	}
	return nil
}

// GetByEmail returns the principal with the given email.
func (s *PostgresPrincipalStore) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	principal := &Principal{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, email, password_hash FROM `+s.db.Schema+`."_principal_" WHERE email=$1;`,
		email).Scan(&principal.UserID, &principal.Name, &principal.Email, &principal.passwordHash)
	if err == csql.ErrNoRows {
		return nil, ErrNoSuchPrincipal
	}
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// GetByID returns the principal with the given id.
func (s *PostgresPrincipalStore) GetByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	principal := &Principal{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, email, password_hash FROM `+s.db.Schema+`."_principal_" WHERE user_id=$1;`,
		id).Scan(&principal.UserID, &principal.Name, &principal.Email, &principal.passwordHash)
	if err == csql.ErrNoRows {
		return nil, ErrNoSuchPrincipal
	}
	if err != nil {
		return nil, err
	}
	return principal, nil
}

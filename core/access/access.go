/*Package access provides authentication for the carevine backend.

It resolves the acting principal for a request from an opaque bearer
token, and exposes the login, register, logout and user routes.
*/
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned on login failure. It does not
	// distinguish an unknown email from a wrong password, to avoid
	// handle enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateHandle is returned when registering an email address
	// that already exists.
	ErrDuplicateHandle = errors.New("email already registered")
	// ErrNoSuchPrincipal is returned by principal stores for unknown
	// identifiers.
	ErrNoSuchPrincipal = errors.New("no such principal")
)

// Principal is an authenticated identity.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`

	// Profile carries fields derived from a linked profile record, for
	// example a patient's age and birth date. Merged into user responses.
	Profile map[string]interface{} `json:"-"`

	passwordHash []byte
}

// AsMap returns the principal as a generic map, with any profile-derived
// fields merged in. The password hash is never part of it.
func (p *Principal) AsMap() map[string]interface{} {
	result := map[string]interface{}{
		"user_id": p.UserID.String(),
		"name":    p.Name,
		"email":   p.Email,
	}
	for key, value := range p.Profile {
		result[key] = value
	}
	return result
}

// PrincipalStore persists principals. Principals are created at
// registration and read at login; deletion is an external concern.
type PrincipalStore interface {
	// Create persists a new principal. It fails with ErrDuplicateHandle
	// if the email is already taken.
	Create(ctx context.Context, principal *Principal) error
	// GetByEmail returns the principal with the given email, or
	// ErrNoSuchPrincipal.
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	// GetByID returns the principal with the given id, or
	// ErrNoSuchPrincipal.
	GetByID(ctx context.Context, id uuid.UUID) (*Principal, error)
}

// ProfileLoader enriches a principal with fields from a linked profile
// record, for example the patient a user account belongs to.
type ProfileLoader interface {
	LoadProfile(ctx context.Context, principal *Principal) (map[string]interface{}, error)
}

type contextKey string

const (
	contextKeyPrincipal contextKey = "_principal_"
	contextKeyToken     contextKey = "_token_"
)

// ContextWithPrincipal returns a new context with the principal added to it
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, principal)
}

// PrincipalFromContext retrieves the authenticated principal from the
// context, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, ok := ctx.Value(contextKeyPrincipal).(*Principal)
	if ok {
		return principal
	}
	return nil
}

// ContextWithToken returns a new context with the presented bearer token
// added to it
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyToken, token)
}

// TokenFromContext retrieves the bearer token presented with the current
// request, or the empty string
func TokenFromContext(ctx context.Context) string {
	token, ok := ctx.Value(contextKeyToken).(string)
	if ok {
		return token
	}
	return ""
}

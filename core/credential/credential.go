/*Package credential issues, validates and revokes opaque bearer tokens.

A token is bound to exactly one principal and one device name. Tokens are
random 256-bit values; only a sha256 checksum is stored, never the token
itself. Expiry is an explicit store parameter: a zero TTL disables it.
Expired and unknown tokens are indistinguishable to callers, both fail
with ErrInvalidCredential.
*/
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCredential is returned by Validate for unknown, revoked or
// expired tokens. The cases are deliberately not distinguishable.
var ErrInvalidCredential = errors.New("invalid credential")

// Credential is the stored binding of a token checksum to a principal
// and a device name.
type Credential struct {
	Checksum    string
	PrincipalID uuid.UUID
	DeviceName  string
	CreatedAt   time.Time
	ExpiresAt   time.Time // zero means the token does not expire
}

// Expired returns true if the credential carries an expiry in the past.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Store is the credential store. It owns the entire credential
// lifecycle; no other component manages authentication state.
type Store interface {
	// Issue generates a new token for the principal and device and
	// records its binding. It returns the plain token, which cannot be
	// retrieved again later.
	Issue(ctx context.Context, principalID uuid.UUID, deviceName string) (string, error)
	// Validate resolves a token to its principal, or fails with
	// ErrInvalidCredential.
	Validate(ctx context.Context, token string) (uuid.UUID, error)
	// Revoke removes the binding for the token. Revoking an unknown or
	// already revoked token is not an error.
	Revoke(ctx context.Context, token string) error
	// RevokeAllForPrincipal removes all bindings for the principal,
	// across all devices.
	RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) error
}

const tokenLength = 32 // bytes of entropy per token

func newToken() (string, string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return token, tokenChecksum(token), nil
}

func tokenChecksum(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

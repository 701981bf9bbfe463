package access

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/carevine/carevine/core/credential"
	"github.com/carevine/carevine/core/logger"
)

// dummyHash is compared against when login hits an unknown email, so
// that unknown and known emails take the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("carevine-dummy-password"), bcrypt.DefaultCost)

// Resolver implements the principal lifecycle: login, registration,
// token resolution and logout. It owns no authentication state itself,
// all credential state lives in the credential store.
type Resolver struct {
	principals  PrincipalStore
	credentials credential.Store
	profiles    ProfileLoader
}

// NewResolver creates a resolver on top of a principal store and a
// credential store.
func NewResolver(principals PrincipalStore, credentials credential.Store) *Resolver {
	return &Resolver{
		principals:  principals,
		credentials: credentials,
	}
}

// WithProfileLoader returns the resolver with a profile loader attached.
// The loader enriches principals with profile-derived fields.
func (r *Resolver) WithProfileLoader(profiles ProfileLoader) *Resolver {
	r.profiles = profiles
	return r
}

// CredentialStore returns the credential store the resolver issues into.
func (r *Resolver) CredentialStore() credential.Store {
	return r.credentials
}

// Login authenticates the email/password pair and issues a token for the
// device. It fails with ErrInvalidCredentials without distinguishing an
// unknown email from a wrong password.
func (r *Resolver) Login(ctx context.Context, email, password, deviceName string) (*Principal, string, error) {
	principal, err := r.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoSuchPrincipal) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword(principal.passwordHash, []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := r.credentials.Issue(ctx, principal.UserID, deviceName)
	if err != nil {
		return nil, "", err
	}
	r.loadProfile(ctx, principal)
	return principal, token, nil
}

// Register creates a new principal and issues a token for the device.
// It fails with ErrDuplicateHandle if the email is already taken.
func (r *Resolver) Register(ctx context.Context, name, email, password, deviceName string) (*Principal, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	principal := &Principal{
		Name:         name,
		Email:        email,
		passwordHash: hash,
	}
	if err := r.principals.Create(ctx, principal); err != nil {
		return nil, "", err
	}
	token, err := r.credentials.Issue(ctx, principal.UserID, deviceName)
	if err != nil {
		return nil, "", err
	}
	return principal, token, nil
}

// ResolveFromToken resolves the acting principal for a bearer token, or
// fails with credential.ErrInvalidCredential.
func (r *Resolver) ResolveFromToken(ctx context.Context, token string) (*Principal, error) {
	principalID, err := r.credentials.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	principal, err := r.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNoSuchPrincipal) {
			// the principal behind the token is gone, treat the token as invalid
			return nil, credential.ErrInvalidCredential
		}
		return nil, err
	}
	r.loadProfile(ctx, principal)
	return principal, nil
}

// Logout revokes the presented token. Only that token; other devices of
// the same principal stay logged in.
func (r *Resolver) Logout(ctx context.Context, token string) error {
	if err := r.credentials.Revoke(ctx, token); err != nil {
		return fmt.Errorf("cannot revoke token: %w", err)
	}
	return nil
}

func (r *Resolver) loadProfile(ctx context.Context, principal *Principal) {
	if r.profiles == nil {
		return
	}
	profile, err := r.profiles.LoadProfile(ctx, principal)
	if err != nil {
		// the profile is an enrichment, its absence must not fail authentication
		logger.FromContext(ctx).WithError(err).Warningln("cannot load profile for", principal.UserID)
		return
	}
	principal.Profile = profile
}

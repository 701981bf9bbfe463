package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carevine/carevine/core/credential"
)

func newTestResolver() *Resolver {
	return NewResolver(NewMemoryPrincipalStore(), credential.NewMemoryStore(0))
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	resolver := newTestResolver()

	registered, token, err := resolver.Register(ctx, "Ibu Siti", "siti@example.com", "rahasia123", "phone")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, "", registered.UserID.String())

	principal, loginToken, err := resolver.Login(ctx, "siti@example.com", "rahasia123", "tablet")
	require.NoError(t, err)
	assert.Equal(t, registered.UserID, principal.UserID)
	assert.NotEmpty(t, loginToken)
	assert.NotEqual(t, token, loginToken)

	resolved, err := resolver.ResolveFromToken(ctx, loginToken)
	require.NoError(t, err)
	assert.Equal(t, registered.UserID, resolved.UserID)
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	resolver := newTestResolver()

	_, _, err := resolver.Register(ctx, "Ibu Siti", "siti@example.com", "rahasia123", "phone")
	require.NoError(t, err)

	// wrong password and unknown email fail with the same error
	_, _, err = resolver.Login(ctx, "siti@example.com", "wrong", "phone")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = resolver.Login(ctx, "nobody@example.com", "rahasia123", "phone")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDuplicateHandle(t *testing.T) {
	ctx := context.Background()
	resolver := newTestResolver()

	_, firstToken, err := resolver.Register(ctx, "Ibu Siti", "siti@example.com", "rahasia123", "phone")
	require.NoError(t, err)

	_, _, err = resolver.Register(ctx, "Impostor", "siti@example.com", "password99", "phone")
	assert.ErrorIs(t, err, ErrDuplicateHandle)

	// the first principal's credentials are unaffected
	_, err = resolver.ResolveFromToken(ctx, firstToken)
	assert.NoError(t, err)
	_, _, err = resolver.Login(ctx, "siti@example.com", "rahasia123", "phone")
	assert.NoError(t, err)
}

func TestLogoutRevokesOnlyPresentedToken(t *testing.T) {
	ctx := context.Background()
	resolver := newTestResolver()

	_, phoneToken, err := resolver.Register(ctx, "Ibu Siti", "siti@example.com", "rahasia123", "phone")
	require.NoError(t, err)
	_, tabletToken, err := resolver.Login(ctx, "siti@example.com", "rahasia123", "tablet")
	require.NoError(t, err)

	require.NoError(t, resolver.Logout(ctx, phoneToken))

	_, err = resolver.ResolveFromToken(ctx, phoneToken)
	assert.ErrorIs(t, err, credential.ErrInvalidCredential)
	_, err = resolver.ResolveFromToken(ctx, tabletToken)
	assert.NoError(t, err)
}

type staticProfileLoader struct {
	profile map[string]interface{}
}

func (l staticProfileLoader) LoadProfile(ctx context.Context, principal *Principal) (map[string]interface{}, error) {
	return l.profile, nil
}

func TestProfileMerge(t *testing.T) {
	ctx := context.Background()
	resolver := newTestResolver().WithProfileLoader(staticProfileLoader{
		profile: map[string]interface{}{"age": 81, "birth_date": "1944-05-02"},
	})

	_, token, err := resolver.Register(ctx, "Ibu Siti", "siti@example.com", "rahasia123", "phone")
	require.NoError(t, err)

	principal, err := resolver.ResolveFromToken(ctx, token)
	require.NoError(t, err)
	merged := principal.AsMap()
	assert.Equal(t, 81, merged["age"])
	assert.Equal(t, "1944-05-02", merged["birth_date"])
	assert.Equal(t, "siti@example.com", merged["email"])
}

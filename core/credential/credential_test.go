package credential

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	principalID := uuid.New()

	token, err := store.Issue(ctx, principalID, "phone")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	resolved, err := store.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, principalID, resolved)

	_, err = store.Validate(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	principalID := uuid.New()

	token, err := store.Issue(ctx, principalID, "phone")
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// revoking again, or revoking a token that never existed, is not an error
	assert.NoError(t, store.Revoke(ctx, token))
	assert.NoError(t, store.Revoke(ctx, "never-issued"))
}

func TestRevokeAllForPrincipal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	principalID := uuid.New()
	otherID := uuid.New()

	phone, err := store.Issue(ctx, principalID, "phone")
	require.NoError(t, err)
	tablet, err := store.Issue(ctx, principalID, "tablet")
	require.NoError(t, err)
	other, err := store.Issue(ctx, otherID, "phone")
	require.NoError(t, err)

	require.NoError(t, store.RevokeAllForPrincipal(ctx, principalID))

	_, err = store.Validate(ctx, phone)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = store.Validate(ctx, tablet)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	// the other principal's token stays valid
	resolved, err := store.Validate(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, otherID, resolved)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore(time.Hour).WithClock(func() time.Time { return now })
	principalID := uuid.New()

	token, err := store.Issue(ctx, principalID, "phone")
	require.NoError(t, err)

	_, err = store.Validate(ctx, token)
	assert.NoError(t, err)

	// beyond the TTL the token fails exactly like an unknown one
	now = now.Add(2 * time.Hour)
	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := store.Issue(ctx, uuid.New(), "phone")
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormProvider(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	provider := NewGormProvider(db)

	created := createUser(t, db, " Admin@Example.com ", "secret")
	assert.Equal(t, "admin@example.com", created.Email)
	assert.NotEqual(t, "secret", created.Password)

	t.Run("retrieve by id", func(t *testing.T) {
		user, err := provider.RetrieveByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Email, user.Email)
	})

	t.Run("retrieve by email ignores case", func(t *testing.T) {
		user, err := provider.RetrieveByEmail(ctx, "ADMIN@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
	})

	t.Run("missing users", func(t *testing.T) {
		_, err := provider.RetrieveByID(ctx, 999)
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = provider.RetrieveByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("validate credentials", func(t *testing.T) {
		assert.True(t, provider.ValidateCredentials(created, "secret"))
		assert.False(t, provider.ValidateCredentials(created, "wrong"))
		assert.False(t, provider.ValidateCredentials(nil, "secret"))
	})

	t.Run("update password", func(t *testing.T) {
		require.NoError(t, provider.UpdatePassword(ctx, created, "new-secret"))

		user, err := provider.RetrieveByID(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, provider.ValidateCredentials(user, "new-secret"))
		assert.False(t, provider.ValidateCredentials(user, "secret"))
	})
}

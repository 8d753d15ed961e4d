package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("secure-password-123")
	require.NoError(t, err)

	assert.NotEqual(t, "secure-password-123", hash)
	assert.True(t, VerifyPassword(hash, "secure-password-123"))
	assert.False(t, VerifyPassword(hash, "wrong-password"))
	assert.False(t, VerifyPassword("not-a-hash", "secure-password-123"))
}

func TestSignUnsign(t *testing.T) {
	token := Sign([]byte(`{"user_id":"1"}`), "secret")
	assert.Len(t, strings.Split(token, "."), 2)

	payload, err := Unsign(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":"1"}`, string(payload))

	t.Run("wrong secret", func(t *testing.T) {
		_, err := Unsign(token, "other")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, bad := range []string{"", "nodot", "!!.??", "e30.!!"} {
			_, err := Unsign(bad, "secret")
			assert.ErrorIs(t, err, ErrInvalidSignature, bad)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		other := Sign([]byte(`{"user_id":"2"}`), "secret")
		forged := strings.Split(other, ".")[0] + "." + strings.Split(token, ".")[1]
		_, err := Unsign(forged, "secret")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestEncryptDecrypt(t *testing.T) {
	encrypted, err := Encrypt([]byte("Hello, World!"), "my-secret-key")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "Hello")

	decrypted, err := Decrypt(encrypted, "my-secret-key")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(decrypted))

	_, err = Decrypt(encrypted, "wrong-key")
	assert.Error(t, err)

	_, err = Decrypt("c2hvcnQ", "my-secret-key")
	assert.Error(t, err)
}

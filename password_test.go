package accounts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestScryptHasher(t *testing.T) {
	hasher := fastHasher()

	salt, err := hasher.GenerateSalt()
	require.NoError(t, err)
	assert.NotEmpty(t, salt)

	other, err := hasher.GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt, other)

	first, err := hasher.Hash("secret", salt)
	require.NoError(t, err)
	second, err := hasher.Hash("secret", salt)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same salt and password give the same digest")

	salted, err := hasher.Hash("secret", other)
	require.NoError(t, err)
	assert.NotEqual(t, first, salted)
}

func TestScryptHasherDefaults(t *testing.T) {
	hasher := accounts.NewScryptHasher()
	assert.Equal(t, 16384, hasher.N)
	assert.Equal(t, 8, hasher.R)
	assert.Equal(t, 1, hasher.P)
	assert.Equal(t, 64, hasher.KeyLen)
}

func TestScryptHasherRejectsBadCost(t *testing.T) {
	hasher := &accounts.ScryptHasher{N: 3, R: 1, P: 1, KeyLen: 32}
	_, err := hasher.Hash("secret", "salt")
	require.Error(t, err)
}

func TestVerifyPassword(t *testing.T) {
	hasher := fastHasher()
	digest, err := hasher.Hash("secret", "pepper")
	require.NoError(t, err)

	account := &accounts.Account{Salt: "pepper", PasswordHash: digest}

	ok, err := accounts.VerifyPassword(hasher, account, "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = accounts.VerifyPassword(hasher, account, "Secret")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = accounts.VerifyPassword(hasher, &accounts.Account{Salt: "pepper"}, "anything")
	require.NoError(t, err)
	assert.True(t, ok, "passwordless accounts accept any candidate")
}

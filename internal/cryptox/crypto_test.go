package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/comicsync/internal/common"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	h, err := HashPassword([]byte("secret-password"))
	require.NoError(t, err)
	assert.NotEqual(t, "secret-password", h)

	require.NoError(t, CheckPassword(h, []byte("secret-password")))
	require.ErrorIs(t, CheckPassword(h, []byte("wrong")), common.ErrUnauthorized)
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := HashPassword([]byte("pw"))
	require.NoError(t, err)
	h2, err := HashPassword([]byte("pw"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword(nil)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestCheckPassword_BadHash(t *testing.T) {
	err := CheckPassword("not-a-bcrypt-hash", []byte("pw"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrUnauthorized)
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("token-1"))
	assert.NotEqual(t, a, HashToken("token-2"))
}

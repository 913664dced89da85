package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationTokens(t *testing.T) {
	_, err := NewVerificationTokens(nil)
	assert.Error(t, err)

	v, err := NewVerificationTokens([]byte("verification-key"))
	require.NoError(t, err)

	token, hash, err := v.Generate()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, verificationTokenBytes)
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, v.Hash(token))
	assert.NotEqual(t, token, hash)

	other, _, err := v.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	rekeyed, err := NewVerificationTokens([]byte("different-key"))
	require.NoError(t, err)
	assert.NotEqual(t, hash, rekeyed.Hash(token))
}

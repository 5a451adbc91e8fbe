package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	tm := NewTokenManager("test-secret", 5)

	token, expiresAt, err := tm.GenerateToken("tenant-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "tenant-1", claims.TenantID)
}

func TestParseTokenWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-a", 5)
	token, _, err := tm.GenerateToken("tenant-1")
	require.NoError(t, err)

	other := NewTokenManager("secret-b", 5)
	_, err = other.ParseToken(token)
	require.Error(t, err)
}

func TestParseTokenMissingTenant(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken("")
	require.NoError(t, err)

	_, err = tm.ParseToken(token)
	require.Error(t, err)
}

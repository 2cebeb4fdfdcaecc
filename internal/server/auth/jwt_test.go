package auth

import (
	"testing"
	"time"

	"github.com/mberzins/envault/internal/common"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestToken_RoundTrip(t *testing.T) {
	token, err := GenerateToken("user-1", secret, time.Minute)
	require.NoError(t, err)

	userID, err := GetUserIDFromToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestToken_Expired(t *testing.T) {
	token, err := GenerateToken("user-1", secret, -time.Minute)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(token, secret)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("user-1", secret, time.Minute)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(token, []byte("other-secret"))
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestToken_Garbage(t *testing.T) {
	_, err := GetUserIDFromToken("not.a.jwt", secret)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

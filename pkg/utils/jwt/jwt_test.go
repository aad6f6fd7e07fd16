package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	m := NewManager("secret", time.Hour)

	token, err := m.GenerateToken(7, "ada@example.com", "ada")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ada", claims.Username)
}

func TestValidateToken_Rejects(t *testing.T) {
	m := NewManager("secret", time.Hour)

	other, err := NewManager("other", time.Hour).GenerateToken(7, "a@example.com", "a")
	require.NoError(t, err)
	_, err = m.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken(7, "a@example.com", "a")
	require.NoError(t, err)
	_, err = m.ValidateToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 7}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ValidateToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

package tokenizer

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/tollgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("k", 32))

func newSession() *core.Session {
	aid := "author-1"
	now := time.Now()
	return &core.Session{
		ID:            uuid.New(),
		WalletAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		AuthorID:      &aid,
		Network:       core.BaseMainnet,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
	}
}

func TestNewJWTTokenizer_ShortSecret(t *testing.T) {
	_, err := NewJWTTokenizer([]byte("short"), "")
	require.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	tk, err := NewJWTTokenizer(testSecret, "tollgate")
	require.NoError(t, err)

	s := newSession()
	token, err := tk.SessionToToken(s)
	require.NoError(t, err)

	claims, err := tk.TokenToClaims(token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID)
	assert.Equal(t, s.WalletAddress, claims.Address)
	assert.Equal(t, core.BaseMainnet, claims.Network)
	require.NotNil(t, claims.AuthorID)
	assert.Equal(t, "author-1", *claims.AuthorID)
}

func TestTokenToClaims_Rejects(t *testing.T) {
	tk, err := NewJWTTokenizer(testSecret, "tollgate")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		s := newSession()
		s.ExpiresAt = time.Now().Add(-time.Minute)
		token, err := tk.SessionToToken(s)
		require.NoError(t, err)

		_, err = tk.TokenToClaims(token)
		assert.ErrorIs(t, err, core.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewJWTTokenizer([]byte(strings.Repeat("x", 32)), "tollgate")
		require.NoError(t, err)
		token, err := other.SessionToToken(newSession())
		require.NoError(t, err)

		_, err = tk.TokenToClaims(token)
		assert.ErrorIs(t, err, core.ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "tollgate",
				Subject:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				ID:        uuid.NewString(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Audience:  jwt.ClaimStrings{"someone:else"},
			},
			Network: string(core.BaseMainnet),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)

		_, err = tk.TokenToClaims(token)
		assert.ErrorIs(t, err, core.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tk.TokenToClaims("not.a.token")
		assert.ErrorIs(t, err, core.ErrInvalidToken)
	})
}

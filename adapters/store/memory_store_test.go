package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/tollgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore_Revoke(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()
	wallet := "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		sess := &core.Session{ID: uuid.New(), WalletAddress: wallet, ExpiresAt: time.Now().Add(time.Hour)}
		require.NoError(t, s.Create(ctx, sess))
		ids = append(ids, sess.ID)
	}
	other := &core.Session{ID: uuid.New(), WalletAddress: "someone-else", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Create(ctx, other))

	require.NoError(t, s.Revoke(ctx, ids[0]))
	n, err := s.RevokeAll(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range ids {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	}
	got, err := s.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	require.ErrorIs(t, s.Revoke(ctx, uuid.New()), core.ErrSessionNotFound)
}

func TestMemoryIdentityStore_CreateIsIdempotent(t *testing.T) {
	s := NewMemoryIdentityStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity, err := s.Create(ctx, "wallet", core.SolanaMainnet)
			if assert.NoError(t, err) {
				ids[i] = identity.AuthorID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, s.Wallets())

	found, err := s.FindByWallet(ctx, "wallet")
	require.NoError(t, err)
	assert.True(t, found.LinkedWallets[0].IsPrimary)
	assert.Equal(t, core.SolanaMainnet, found.PrimaryPayoutNetwork)

	_, err = s.FindByWallet(ctx, "other")
	require.ErrorIs(t, err, core.ErrIdentityNotFound)
}

func TestMemoryRateLimiter_Window(t *testing.T) {
	l := NewMemoryRateLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, _ := l.Allow(ctx, "k", 1, time.Minute)
	assert.True(t, ok)
	ok, retry, _ := l.Allow(ctx, "k", 1, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	now = now.Add(time.Minute)
	ok, _, _ = l.Allow(ctx, "k", 1, time.Minute)
	assert.True(t, ok)
}

func TestMemoryRateLimiter_DropsStaleWindows(t *testing.T) {
	l := NewMemoryRateLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		_, _, err := l.Allow(ctx, "nonce:"+ip, 5, time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, l.windows, 3)

	now = now.Add(time.Minute)
	ok, _, err := l.Allow(ctx, "nonce:4.4.4.4", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, l.windows, 1)
}

func TestMemoryNonceStore_Expire(t *testing.T) {
	s := NewMemoryNonceStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &core.NonceRecord{Nonce: "n1", ExpiresAt: now}))
	require.NoError(t, s.Expire(ctx, "n1"))

	_, err := s.Get(ctx, "n1")
	assert.ErrorIs(t, err, core.ErrNonceExpired)
	_, err = s.Consume(ctx, "n1")
	assert.ErrorIs(t, err, core.ErrNonceExpired)
	_, err = s.Get(ctx, "n1")
	assert.ErrorIs(t, err, core.ErrNonceExpired, "consume keeps the marker")

	now = now.Add(NonceTombstoneTTL)
	_, err = s.Get(ctx, "n1")
	assert.ErrorIs(t, err, core.ErrNonceNotFound)
	assert.Empty(t, s.tombstones)
}

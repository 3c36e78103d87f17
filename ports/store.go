package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/tollgate/core"
)

// NonceStore holds outstanding login challenges
type NonceStore interface {
	Put(ctx context.Context, record *core.NonceRecord) error
	// Get returns core.ErrNonceNotFound when no record exists and
	// core.ErrNonceExpired when the record was expired with Expire
	Get(ctx context.Context, nonce string) (*core.NonceRecord, error)
	// Consume atomically removes and returns the record. Of two concurrent
	// callers exactly one gets the record, the other core.ErrNonceNotFound.
	// Expired nonces are not removed and report core.ErrNonceExpired.
	Consume(ctx context.Context, nonce string) (*core.NonceRecord, error)
	// Expire replaces the record with a short-lived marker so that later
	// lookups keep failing with core.ErrNonceExpired
	Expire(ctx context.Context, nonce string) error
	Delete(ctx context.Context, nonce string) error
}

// SessionStore persists issued sessions
type SessionStore interface {
	Create(ctx context.Context, session *core.Session) error
	// Get returns core.ErrSessionNotFound when no session exists
	Get(ctx context.Context, id uuid.UUID) (*core.Session, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAll(ctx context.Context, walletAddress string) (int64, error)
}

// IdentityStore resolves wallets to authors. A normalized address is linked
// to at most one author whatever network it signed in on.
type IdentityStore interface {
	// FindByWallet returns core.ErrIdentityNotFound when the wallet is unlinked
	FindByWallet(ctx context.Context, address string) (*core.AuthorIdentity, error)
	// Create registers a new author whose primary wallet is address. If another
	// writer linked the wallet first, the existing identity is returned.
	Create(ctx context.Context, address string, network core.Network) (*core.AuthorIdentity, error)
}

// AtaLogStore records associated token account creations
type AtaLogStore interface {
	// Record inserts the row; a duplicate (wallet, network, mint) is a no-op
	// and reports inserted=false.
	Record(ctx context.Context, entry *core.AtaCreation) (inserted bool, err error)
	Count(ctx context.Context, walletAddress string, network core.Network, mint string) (int, error)
}

// RateLimiter enforces a fixed request budget per key and window
type RateLimiter interface {
	// Allow counts one hit for key and reports whether it fits the budget,
	// with the time until the window resets.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

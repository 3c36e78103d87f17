package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/layer-3/tollgate/core"
)

// SessionStore implements ports.SessionStore using PostgreSQL.
// Sessions are never deleted; revocation flips a flag.
type SessionStore struct{ db *DB }

// NewSessionStore constructs a session store.
func NewSessionStore(db *DB) *SessionStore { return &SessionStore{db: db} }

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, session *core.Session) error {
	const q = `
INSERT INTO sessions (id, wallet_address, author_id, network, expires_at, revoked, last_activity_at, user_agent, ip_address, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	authorID, err := nullableUUID(session.AuthorID)
	if err != nil {
		return err
	}
	_, err = s.db.Pool.Exec(ctx, q,
		session.ID, session.WalletAddress, authorID, string(session.Network), session.ExpiresAt,
		session.Revoked, session.LastActivityAt, session.UserAgent, session.IPAddress, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert session: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// Get selects a session by id.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*core.Session, error) {
	const q = `
SELECT id, wallet_address, author_id::text, network, expires_at, revoked, last_activity_at, user_agent, ip_address, created_at
FROM sessions WHERE id=$1`
	var (
		out     core.Session
		network string
	)
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(
		&out.ID, &out.WalletAddress, &out.AuthorID, &network, &out.ExpiresAt,
		&out.Revoked, &out.LastActivityAt, &out.UserAgent, &out.IPAddress, &out.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select session: %v", core.ErrStoreOperationFailed, err)
	}
	out.Network = core.Network(network)
	return &out, nil
}

// Touch records activity on a session.
func (s *SessionStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE sessions SET last_activity_at=$2 WHERE id=$1`
	tag, err := s.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("%w: touch session: %v", core.ErrStoreOperationFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// Revoke marks one session revoked.
func (s *SessionStore) Revoke(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE sessions SET revoked=true WHERE id=$1`
	tag, err := s.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("%w: revoke session: %v", core.ErrStoreOperationFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// RevokeAll marks every live session of a wallet revoked.
func (s *SessionStore) RevokeAll(ctx context.Context, walletAddress string) (int64, error) {
	const q = `UPDATE sessions SET revoked=true WHERE wallet_address=$1 AND NOT revoked`
	tag, err := s.db.Pool.Exec(ctx, q, walletAddress)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke sessions: %v", core.ErrStoreOperationFailed, err)
	}
	return tag.RowsAffected(), nil
}

func nullableUUID(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("author id %q: %w", *s, err)
	}
	return &id, nil
}

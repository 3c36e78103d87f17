package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/tollgate/core"
)

// NonceTombstoneTTL is how long an expired nonce keeps reporting
// core.ErrNonceExpired before it is forgotten
const NonceTombstoneTTL = 10 * time.Minute

// MemoryNonceStore is an in-memory implementation of the NonceStore interface.
// It is only consistent within a single process.
type MemoryNonceStore struct {
	records    map[string]core.NonceRecord
	tombstones map[string]time.Time
	mu         sync.Mutex
	now        func() time.Time
}

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		records:    make(map[string]core.NonceRecord),
		tombstones: make(map[string]time.Time),
		now:        time.Now,
	}
}

// missing reports why nonce has no live record. Callers hold mu.
func (s *MemoryNonceStore) missing(nonce string) error {
	until, ok := s.tombstones[nonce]
	if !ok {
		return core.ErrNonceNotFound
	}
	if !s.now().Before(until) {
		delete(s.tombstones, nonce)
		return core.ErrNonceNotFound
	}
	return core.ErrNonceExpired
}

func (s *MemoryNonceStore) Put(ctx context.Context, record *core.NonceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Nonce] = *record
	return nil
}

func (s *MemoryNonceStore) Get(ctx context.Context, nonce string) (*core.NonceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[nonce]
	if !ok {
		return nil, s.missing(nonce)
	}
	return &record, nil
}

func (s *MemoryNonceStore) Consume(ctx context.Context, nonce string) (*core.NonceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[nonce]
	if !ok {
		return nil, s.missing(nonce)
	}
	delete(s.records, nonce)
	return &record, nil
}

func (s *MemoryNonceStore) Expire(ctx context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for n, until := range s.tombstones {
		if !now.Before(until) {
			delete(s.tombstones, n)
		}
	}
	delete(s.records, nonce)
	s.tombstones[nonce] = now.Add(NonceTombstoneTTL)
	return nil
}

func (s *MemoryNonceStore) Delete(ctx context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, nonce)
	delete(s.tombstones, nonce)
	return nil
}

// MemorySessionStore is an in-memory implementation of the SessionStore interface
type MemorySessionStore struct {
	sessions map[uuid.UUID]core.Session
	mu       sync.RWMutex
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[uuid.UUID]core.Session),
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = *session
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id uuid.UUID) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	session.LastActivityAt = at
	s.sessions[id] = session
	return nil
}

func (s *MemorySessionStore) Revoke(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	session.Revoked = true
	s.sessions[id] = session
	return nil
}

func (s *MemorySessionStore) RevokeAll(ctx context.Context, walletAddress string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if session.WalletAddress != walletAddress || session.Revoked {
			continue
		}
		session.Revoked = true
		s.sessions[id] = session
		n++
	}
	return n, nil
}

// Put replaces a stored session as is. Tests use it to stage stale records.
func (s *MemorySessionStore) Put(session *core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = *session
}

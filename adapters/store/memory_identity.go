package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/tollgate/core"
)

// MemoryIdentityStore is an in-memory implementation of the IdentityStore interface
type MemoryIdentityStore struct {
	authors map[string]*core.AuthorIdentity
	wallets map[string]string
	mu      sync.Mutex
}

// NewMemoryIdentityStore creates a new in-memory identity store
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		authors: make(map[string]*core.AuthorIdentity),
		wallets: make(map[string]string),
	}
}

func (s *MemoryIdentityStore) FindByWallet(ctx context.Context, address string) (*core.AuthorIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.find(address)
}

func (s *MemoryIdentityStore) Create(ctx context.Context, address string, network core.Network) (*core.AuthorIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity, err := s.find(address); err == nil {
		return identity, nil
	}

	identity := &core.AuthorIdentity{
		AuthorID:             uuid.NewString(),
		PrimaryPayoutAddress: address,
		PrimaryPayoutNetwork: network,
		LinkedWallets: []core.LinkedWallet{
			{Address: address, Network: network, IsPrimary: true},
		},
	}
	s.authors[identity.AuthorID] = identity
	s.wallets[address] = identity.AuthorID

	return copyIdentity(identity), nil
}

// Wallets is the number of linked wallet rows
func (s *MemoryIdentityStore) Wallets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.wallets)
}

func (s *MemoryIdentityStore) find(address string) (*core.AuthorIdentity, error) {
	authorID, ok := s.wallets[address]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	return copyIdentity(s.authors[authorID]), nil
}

func copyIdentity(identity *core.AuthorIdentity) *core.AuthorIdentity {
	out := *identity
	out.LinkedWallets = append([]core.LinkedWallet(nil), identity.LinkedWallets...)
	return &out
}

type ataKey struct {
	wallet  string
	network core.Network
	mint    string
}

// MemoryAtaLog is an in-memory implementation of the AtaLogStore interface
type MemoryAtaLog struct {
	rows map[ataKey]core.AtaCreation
	mu   sync.Mutex
}

// NewMemoryAtaLog creates a new in-memory creation log
func NewMemoryAtaLog() *MemoryAtaLog {
	return &MemoryAtaLog{rows: make(map[ataKey]core.AtaCreation)}
}

func (s *MemoryAtaLog) Record(ctx context.Context, entry *core.AtaCreation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ataKey{entry.WalletAddress, entry.Network, entry.MintAddress}
	if _, exists := s.rows[key]; exists {
		return false, nil
	}
	row := *entry
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	s.rows[key] = row
	return true, nil
}

func (s *MemoryAtaLog) Count(ctx context.Context, walletAddress string, network core.Network, mint string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[ataKey{walletAddress, network, mint}]; ok {
		return 1, nil
	}
	return 0, nil
}

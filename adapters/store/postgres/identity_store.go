package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/layer-3/tollgate/core"
)

// IdentityStore implements ports.IdentityStore using PostgreSQL.
type IdentityStore struct{ db *DB }

// NewIdentityStore constructs an identity store.
func NewIdentityStore(db *DB) *IdentityStore { return &IdentityStore{db: db} }

// FindByWallet loads the author a wallet is linked to, with all linked wallets.
func (s *IdentityStore) FindByWallet(ctx context.Context, address string) (*core.AuthorIdentity, error) {
	const q = `
SELECT a.id::text, a.primary_payout_address, a.primary_payout_network
FROM author_wallets w JOIN authors a ON a.id = w.author_id
WHERE w.address=$1`
	var (
		identity core.AuthorIdentity
		network  string
	)
	err := s.db.Pool.QueryRow(ctx, q, address).Scan(&identity.AuthorID, &identity.PrimaryPayoutAddress, &network)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select identity: %v", core.ErrStoreOperationFailed, err)
	}
	identity.PrimaryPayoutNetwork = core.Network(network)

	wallets, err := s.wallets(ctx, identity.AuthorID)
	if err != nil {
		return nil, err
	}
	identity.LinkedWallets = wallets
	return &identity, nil
}

// Create inserts a new author with address as its primary wallet. A concurrent
// writer linking the same wallet first wins; its identity is returned instead.
func (s *IdentityStore) Create(ctx context.Context, address string, network core.Network) (*core.AuthorIdentity, error) {
	identity, err := s.create(ctx, address, network)
	if errors.Is(err, errWalletTaken) {
		return s.FindByWallet(ctx, address)
	}
	return identity, err
}

var errWalletTaken = errors.New("wallet linked concurrently")

func (s *IdentityStore) create(ctx context.Context, address string, network core.Network) (identity *core.AuthorIdentity, err error) {
	const insAuthor = `
INSERT INTO authors (id, primary_payout_address, primary_payout_network)
VALUES ($1, $2, $3)`
	const insWallet = `
INSERT INTO author_wallets (address, network, author_id, is_primary)
VALUES ($1, $2, $3, true)
ON CONFLICT (address) DO NOTHING`

	authorID := uuid.New()

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", core.ErrStoreOperationFailed, err)
	}
	linked := false
	defer func() {
		if err != nil || !linked {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			identity, err = nil, fmt.Errorf("%w: commit: %v", core.ErrStoreOperationFailed, e)
		}
	}()

	if _, err = tx.Exec(ctx, insAuthor, authorID, address, string(network)); err != nil {
		return nil, fmt.Errorf("%w: insert author: %v", core.ErrStoreOperationFailed, err)
	}
	tag, err := tx.Exec(ctx, insWallet, address, string(network), authorID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errWalletTaken
		}
		return nil, fmt.Errorf("%w: insert wallet: %v", core.ErrStoreOperationFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, errWalletTaken
	}

	linked = true
	return &core.AuthorIdentity{
		AuthorID:             authorID.String(),
		PrimaryPayoutAddress: address,
		PrimaryPayoutNetwork: network,
		LinkedWallets:        []core.LinkedWallet{{Address: address, Network: network, IsPrimary: true}},
	}, nil
}

func (s *IdentityStore) wallets(ctx context.Context, authorID string) ([]core.LinkedWallet, error) {
	const q = `
SELECT address, network, is_primary
FROM author_wallets WHERE author_id=$1 ORDER BY created_at`
	id, err := uuid.Parse(authorID)
	if err != nil {
		return nil, fmt.Errorf("%w: author id %q: %v", core.ErrStoreOperationFailed, authorID, err)
	}
	rows, err := s.db.Pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("%w: select wallets: %v", core.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	var out []core.LinkedWallet
	for rows.Next() {
		var (
			w       core.LinkedWallet
			network string
		)
		if err := rows.Scan(&w.Address, &network, &w.IsPrimary); err != nil {
			return nil, fmt.Errorf("%w: scan wallet: %v", core.ErrStoreOperationFailed, err)
		}
		w.Network = core.Network(network)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate wallets: %v", core.ErrStoreOperationFailed, err)
	}
	return out, nil
}

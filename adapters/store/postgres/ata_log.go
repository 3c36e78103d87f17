package postgres

import (
	"context"
	"fmt"

	"github.com/layer-3/tollgate/core"
)

// AtaLog implements ports.AtaLogStore using PostgreSQL.
type AtaLog struct{ db *DB }

// NewAtaLog constructs an ATA creation log.
func NewAtaLog(db *DB) *AtaLog { return &AtaLog{db: db} }

// Record appends a creation row; duplicates of (wallet, network, mint) are ignored.
func (l *AtaLog) Record(ctx context.Context, entry *core.AtaCreation) (bool, error) {
	const q = `
INSERT INTO ata_creations (wallet_address, ata_address, network, mint_address, tx_signature, fee_payer, fee_lamports, trigger_source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (wallet_address, network, mint_address) DO NOTHING`
	tag, err := l.db.Pool.Exec(ctx, q,
		entry.WalletAddress, entry.AtaAddress, string(entry.Network), entry.MintAddress,
		entry.TxSignature, entry.FeePayer, int64(entry.FeeLamports), entry.TriggerSource,
	)
	if err != nil {
		return false, fmt.Errorf("%w: insert ata creation: %v", core.ErrStoreOperationFailed, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Count returns how many rows exist for the triple, which is 0 or 1.
func (l *AtaLog) Count(ctx context.Context, walletAddress string, network core.Network, mint string) (int, error) {
	const q = `
SELECT count(*) FROM ata_creations
WHERE wallet_address=$1 AND network=$2 AND mint_address=$3`
	var n int
	if err := l.db.Pool.QueryRow(ctx, q, walletAddress, string(network), mint).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count ata creations: %v", core.ErrStoreOperationFailed, err)
	}
	return n, nil
}

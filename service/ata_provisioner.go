package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"go.uber.org/zap"
)

// ATAProvisioner makes sure Solana payees hold a token account for the
// settlement asset before a payment is settled to them.
type ATAProvisioner struct {
	chain    ports.TokenAccountChain
	log      ports.AtaLogStore
	eventPub ports.EventPublisher
	networks core.NetworkTable
	logger   *zap.Logger
	now      func() time.Time
}

// NewATAProvisioner creates a provisioner. A nil chain means no fee payer key
// is configured and every mainnet Ensure fails.
func NewATAProvisioner(
	chain ports.TokenAccountChain,
	log ports.AtaLogStore,
	eventPub ports.EventPublisher,
	networks core.NetworkTable,
	logger *zap.Logger,
) *ATAProvisioner {
	if networks == nil {
		networks = core.DefaultNetworks()
	}
	return &ATAProvisioner{
		chain:    chain,
		log:      log,
		eventPub: eventPub,
		networks: networks,
		logger:   logger,
		now:      time.Now,
	}
}

// Ensure creates wallet's associated token account on network if missing.
// Only Solana mainnet is provisioned; every other network succeeds as a no-op.
func (p *ATAProvisioner) Ensure(ctx context.Context, wallet string, network core.Network, trigger string) core.AtaResult {
	info, ok := p.networks.Lookup(network)
	if !ok || info.Family() != core.FamilySolana || info.Testnet {
		return core.AtaResult{Success: true}
	}

	if p.chain == nil {
		return core.AtaResult{Err: core.ErrFeePayerNotConfigured}
	}

	owner, err := core.NormalizeAddress(wallet, core.FamilySolana)
	if err != nil {
		return core.AtaResult{Err: err}
	}

	ata, err := p.chain.AssociatedTokenAddress(owner, info.Asset)
	if err != nil {
		return core.AtaResult{Err: fmt.Errorf("%w: %v", core.ErrAtaCreationFailed, err)}
	}

	logger := p.logger.With(
		zap.String("wallet", owner),
		zap.String("ata", ata),
		zap.String("network", network.String()),
	)

	exists, err := p.chain.AccountExists(ctx, ata)
	if err != nil {
		return core.AtaResult{AtaAddress: ata, Err: fmt.Errorf("%w: %v", core.ErrAtaCreationFailed, err)}
	}
	if exists {
		return core.AtaResult{Success: true, AtaAddress: ata, AlreadyExists: true}
	}

	sig, err := p.chain.CreateAssociatedTokenAccount(ctx, owner, info.Asset)
	if err != nil {
		if p.createdElsewhere(ctx, ata, err) {
			logger.Info("token account created concurrently")
			return core.AtaResult{Success: true, AtaAddress: ata, AlreadyExists: true}
		}
		logger.Error("failed to submit token account creation", zap.Error(err))
		return core.AtaResult{AtaAddress: ata, Err: fmt.Errorf("%w: %v", core.ErrAtaCreationFailed, err)}
	}

	fee, err := p.chain.Confirm(ctx, sig)
	if err != nil {
		if p.createdElsewhere(ctx, ata, err) {
			logger.Info("token account created concurrently", zap.String("tx", sig))
			return core.AtaResult{Success: true, AtaAddress: ata, AlreadyExists: true}
		}
		logger.Error("token account creation failed", zap.String("tx", sig), zap.Error(err))
		return core.AtaResult{AtaAddress: ata, TxSignature: sig, Err: fmt.Errorf("%w: %v", core.ErrAtaCreationFailed, err)}
	}

	entry := &core.AtaCreation{
		WalletAddress: owner,
		AtaAddress:    ata,
		Network:       network,
		MintAddress:   info.Asset,
		TxSignature:   sig,
		FeePayer:      p.chain.FeePayer(),
		FeeLamports:   fee,
		TriggerSource: trigger,
		CreatedAt:     p.now(),
	}
	p.record(ctx, logger, entry)

	logger.Info("token account created", zap.String("tx", sig), zap.Uint64("fee_lamports", fee))
	return core.AtaResult{Success: true, AtaAddress: ata, TxSignature: sig}
}

// createdElsewhere reports whether a failed creation lost a race against
// another transaction creating the same account
func (p *ATAProvisioner) createdElsewhere(ctx context.Context, ata string, err error) bool {
	var txErr *ports.ChainTxError
	if errors.As(err, &txErr) && alreadyInUse(txErr.Reason) {
		return true
	}
	if alreadyInUse(err.Error()) {
		return true
	}
	exists, checkErr := p.chain.AccountExists(ctx, ata)
	return checkErr == nil && exists
}

func alreadyInUse(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "already in use")
}

// record writes the audit row; failures are logged and swallowed
func (p *ATAProvisioner) record(ctx context.Context, logger *zap.Logger, entry *core.AtaCreation) {
	inserted, err := p.log.Record(ctx, entry)
	if err != nil {
		logger.Warn("failed to record token account creation", zap.Error(err))
		return
	}
	if !inserted {
		return
	}

	if err := p.eventPub.PublishAtaCreated(ctx, entry); err != nil {
		logger.Warn("failed to publish token account event", zap.Error(err))
	}
}

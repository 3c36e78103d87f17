package ports

import (
	"context"

	"github.com/layer-3/tollgate/core"
)

// Facilitator verifies and settles x402 payments on behalf of this service.
// Transport failures wrap core.ErrFacilitatorUnavailable.
type Facilitator interface {
	Supported(ctx context.Context) ([]core.SupportedKind, error)
	Verify(ctx context.Context, payload *core.PaymentPayload, requirement *core.PaymentRequirement) (*core.VerifyResult, error)
	Settle(ctx context.Context, payload *core.PaymentPayload, requirement *core.PaymentRequirement) (*core.SettleResult, error)
}

// FeePayerSource exposes facilitator fee payers per network
type FeePayerSource interface {
	FeePayer(ctx context.Context, network core.Network) (string, bool, error)
}

// TokenAccountChain is the slice of Solana RPC the provisioner needs
type TokenAccountChain interface {
	// AssociatedTokenAddress derives owner's token account for mint
	AssociatedTokenAddress(owner, mint string) (string, error)
	// AccountExists reports whether address holds an initialized account
	AccountExists(ctx context.Context, address string) (bool, error)
	// CreateAssociatedTokenAccount submits a create-ATA transaction paid by
	// the chain's fee payer and returns its signature.
	CreateAssociatedTokenAccount(ctx context.Context, owner, mint string) (string, error)
	// Confirm waits for the transaction to confirm and returns the fee paid.
	// An on-chain failure is returned as *ChainTxError.
	Confirm(ctx context.Context, signature string) (uint64, error)
	FeePayer() string
}

// ChainTxError is a transaction that landed but failed on-chain
type ChainTxError struct {
	Signature string
	Reason    string
}

func (e *ChainTxError) Error() string {
	return "transaction " + e.Signature + " failed on-chain: " + e.Reason
}

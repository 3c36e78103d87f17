// Package svm submits associated token account transactions over Solana RPC.
package svm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/layer-3/tollgate/ports"
	"github.com/sethvargo/go-retry"
)

// DefaultFeeLamports is recorded when the fee of a confirmed transaction
// cannot be read back.
const DefaultFeeLamports uint64 = 5000

// RPC is the subset of *rpc.Client used by Chain
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Chain creates associated token accounts paid for by a server held key
type Chain struct {
	client         RPC
	feePayer       solana.PrivateKey
	confirmTimeout time.Duration
	pollInterval   time.Duration
	sendAttempts   uint64
	backoff        time.Duration
}

var _ ports.TokenAccountChain = (*Chain)(nil)

// Option configures a Chain
type Option func(*Chain)

// WithConfirmTimeout bounds how long Confirm polls for a signature
func WithConfirmTimeout(d time.Duration) Option { return func(c *Chain) { c.confirmTimeout = d } }

// WithPollInterval sets the signature status polling interval
func WithPollInterval(d time.Duration) Option { return func(c *Chain) { c.pollInterval = d } }

// WithSendRetries sets how often a transport failure on send is retried
func WithSendRetries(n uint64, backoff time.Duration) Option {
	return func(c *Chain) {
		c.sendAttempts = n
		c.backoff = backoff
	}
}

// New creates a Chain over client
func New(client RPC, feePayer solana.PrivateKey, opts ...Option) *Chain {
	c := &Chain{
		client:         client,
		feePayer:       feePayer,
		confirmTimeout: 60 * time.Second,
		pollInterval:   time.Second,
		sendAttempts:   3,
		backoff:        250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial creates a Chain against an RPC endpoint using a base58 fee payer key
func Dial(rpcURL, feePayerKey string, opts ...Option) (*Chain, error) {
	key, err := solana.PrivateKeyFromBase58(feePayerKey)
	if err != nil {
		return nil, fmt.Errorf("invalid fee payer key: %w", err)
	}
	return New(rpc.New(rpcURL), key, opts...), nil
}

// FeePayer returns the base58 public key paying for created accounts
func (c *Chain) FeePayer() string {
	return c.feePayer.PublicKey().String()
}

// AccountExists reports whether an account is allocated at address
func (c *Chain) AccountExists(ctx context.Context, address string) (bool, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return false, fmt.Errorf("invalid account address: %w", err)
	}

	res, err := c.client.GetAccountInfoWithOpts(ctx, pk, &rpc.GetAccountInfoOpts{Commitment: rpc.CommitmentConfirmed})
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get account info: %w", err)
	}
	return res != nil && res.Value != nil, nil
}

// CreateAssociatedTokenAccount submits the create instruction for owner's
// account of mint. The transaction is re-signed with a fresh blockhash on
// every retry.
func (c *Chain) CreateAssociatedTokenAccount(ctx context.Context, owner, mint string) (string, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return "", fmt.Errorf("invalid owner address: %w", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint address: %w", err)
	}

	payer := c.feePayer.PublicKey()
	ix := associatedtokenaccount.NewCreateInstruction(payer, ownerKey, mintKey).Build()

	var sig solana.Signature
	backoff := retry.WithMaxRetries(c.sendAttempts, retry.NewExponential(c.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		recent, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to get blockhash: %w", err))
		}

		tx, err := solana.NewTransaction([]solana.Instruction{ix}, recent.Value.Blockhash, solana.TransactionPayer(payer))
		if err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
			if key.Equals(payer) {
				return &c.feePayer
			}
			return nil
		}); err != nil {
			return fmt.Errorf("failed to sign transaction: %w", err)
		}

		sig, err = c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			// the node answered; preflight rejections do not improve on retry
			var rpcErr *jsonrpc.RPCError
			if errors.As(err, &rpcErr) {
				return fmt.Errorf("failed to send transaction: %w", err)
			}
			return retry.RetryableError(fmt.Errorf("failed to send transaction: %w", err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return sig.String(), nil
}

// Confirm polls until signature reaches confirmed commitment. A transaction
// that executed with an error is reported as *ports.ChainTxError.
func (c *Chain) Confirm(ctx context.Context, signature string) (uint64, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return 0, fmt.Errorf("invalid signature: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		res, err := c.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return 0, &ports.ChainTxError{Signature: signature, Reason: fmt.Sprint(st.Err)}
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return c.fee(ctx, sig), nil
			}
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("transaction %s not confirmed: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Chain) fee(ctx context.Context, sig solana.Signature) uint64 {
	maxVersion := uint64(0)
	tx, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || tx == nil || tx.Meta == nil {
		return DefaultFeeLamports
	}
	return tx.Meta.Fee
}

// AssociatedTokenAddress derives owner's associated token account for mint
func (c *Chain) AssociatedTokenAddress(owner, mint string) (string, error) {
	return AssociatedTokenAddress(owner, mint)
}

// AssociatedTokenAddress derives owner's associated token account for mint
func AssociatedTokenAddress(owner, mint string) (string, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return "", fmt.Errorf("invalid owner address: %w", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint address: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return "", fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return ata.String(), nil
}

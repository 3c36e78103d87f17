// Package verifier implements wallet signature checks per network family.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
)

// EVM verifies EIP-4361 sign-in messages signed with personal_sign
type EVM struct {
	domain         string
	networks       core.NetworkTable
	defaultNetwork core.Network
	now            func() time.Time
}

// NewEVM creates a verifier bound to the server's domain. Chain ids missing
// from networks resolve to defaultNetwork.
func NewEVM(domain string, networks core.NetworkTable, defaultNetwork core.Network) *EVM {
	return &EVM{
		domain:         domain,
		networks:       networks,
		defaultNetwork: defaultNetwork,
		now:            time.Now,
	}
}

func (v *EVM) Family() core.Family { return core.FamilyEVM }

// Verify checks the message fields against the challenge and recovers the signer
func (v *EVM) Verify(ctx context.Context, in ports.VerifyInput) (*ports.Verified, error) {
	msg, err := core.ParseSIWEMessage(in.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	if msg.Domain != v.domain {
		return nil, fmt.Errorf("%w: domain mismatch", core.ErrInvalidSignature)
	}
	if msg.Nonce != in.Record.Nonce {
		return nil, fmt.Errorf("%w: nonce mismatch", core.ErrInvalidSignature)
	}

	claimed, err := core.NormalizeAddress(msg.Address, core.FamilyEVM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	if claimed != in.Record.WalletAddress {
		return nil, fmt.Errorf("%w: address does not match challenge", core.ErrInvalidSignature)
	}

	now := v.now()
	if msg.ExpirationTime != nil && !now.Before(*msg.ExpirationTime) {
		return nil, fmt.Errorf("%w: message expired", core.ErrInvalidSignature)
	}
	if msg.NotBefore != nil && now.Before(*msg.NotBefore) {
		return nil, fmt.Errorf("%w: message not yet valid", core.ErrInvalidSignature)
	}

	signer, err := recoverPersonalSign(in.Message, in.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	if signer.Hex() != claimed {
		return nil, fmt.Errorf("%w: signer mismatch", core.ErrInvalidSignature)
	}

	network, ok := v.networks.ByChainID(msg.ChainID)
	if !ok {
		network = v.defaultNetwork
	}

	return &ports.Verified{Address: claimed, Network: network}, nil
}

// recoverPersonalSign returns the address that produced an EIP-191 signature
func recoverPersonalSign(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}

	// Wallets emit v as 27/28, the recovery routine expects 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

package service

import (
	"context"
	"fmt"

	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"github.com/shopspring/decimal"
)

// DefaultMaxTimeoutSeconds is how long a payer may take to submit a proof
const DefaultMaxTimeoutSeconds = 300

// RequirementConfig configures the RequirementBuilder
type RequirementConfig struct {
	Networks   core.NetworkTable
	Production bool
	// DefaultNetwork is used when a caller names none. Production always
	// falls back to Base mainnet.
	DefaultNetwork core.Network
	// DefaultSolanaNetwork is offered to Solana payees when a caller names
	// no networks. Production always uses Solana mainnet.
	DefaultSolanaNetwork core.Network
	MaxTimeoutSeconds    int
}

// BuildInput describes one payment target for a resource
type BuildInput struct {
	Network     core.Network
	PriceUSD    decimal.Decimal
	PayTo       string
	Resource    string
	Description string
	MimeType    string
}

// RequirementBuilder turns a USD price into x402 payment requirements
type RequirementBuilder struct {
	cfg       RequirementConfig
	feePayers ports.FeePayerSource
}

// NewRequirementBuilder creates a builder. feePayers may be nil when no
// Solana network is offered.
func NewRequirementBuilder(cfg RequirementConfig, feePayers ports.FeePayerSource) *RequirementBuilder {
	if cfg.Networks == nil {
		cfg.Networks = core.DefaultNetworks()
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = DefaultMaxTimeoutSeconds
	}
	if cfg.Production || cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = core.BaseMainnet
	}
	if cfg.Production {
		cfg.DefaultSolanaNetwork = core.SolanaMainnet
	} else if cfg.DefaultSolanaNetwork == "" {
		cfg.DefaultSolanaNetwork = core.SolanaDevnet
	}
	return &RequirementBuilder{cfg: cfg, feePayers: feePayers}
}

// ResolveNetwork returns requested, or the default network when empty
func (b *RequirementBuilder) ResolveNetwork(requested core.Network) core.Network {
	if requested == "" {
		return b.cfg.DefaultNetwork
	}
	return requested
}

// DefaultTargets lists the networks offered when a caller names none
func (b *RequirementBuilder) DefaultTargets() []core.Network {
	return []core.Network{b.cfg.DefaultNetwork, b.cfg.DefaultSolanaNetwork}
}

// Networks is the table of networks the builder can price on
func (b *RequirementBuilder) Networks() core.NetworkTable { return b.cfg.Networks }

// Build produces the requirement for paying in.PriceUSD on in.Network
func (b *RequirementBuilder) Build(ctx context.Context, in BuildInput) (*core.PaymentRequirement, error) {
	network := b.ResolveNetwork(in.Network)

	info, ok := b.cfg.Networks.Lookup(network)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedNetwork, network)
	}
	if b.cfg.Production && info.Testnet {
		return nil, fmt.Errorf("%w: %s", core.ErrTestnetNotAllowed, network)
	}

	payTo, err := core.NormalizeAddress(in.PayTo, info.Family())
	if err != nil {
		return nil, err
	}

	amount, err := AtomicAmount(in.PriceUSD, info.Decimals)
	if err != nil {
		return nil, err
	}

	req := &core.PaymentRequirement{
		Scheme:            core.SchemeExact,
		Network:           network,
		Asset:             info.Asset,
		Amount:            amount,
		PayTo:             payTo,
		MaxTimeoutSeconds: b.cfg.MaxTimeoutSeconds,
		Resource:          in.Resource,
		Description:       in.Description,
		MimeType:          in.MimeType,
	}

	switch info.Family() {
	case core.FamilyEVM:
		req.Extra.Name = info.EIP712Name
		req.Extra.Version = info.EIP712Version
	case core.FamilySolana:
		if b.feePayers != nil {
			fp, ok, err := b.feePayers.FeePayer(ctx, network)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve fee payer: %w", err)
			}
			if ok {
				req.Extra.FeePayer = fp
			}
		}
	}

	return req, nil
}

// Envelope wraps requirements into a 402 response body
func (b *RequirementBuilder) Envelope(reqs []core.PaymentRequirement, reason string) *core.PaymentRequired {
	out := &core.PaymentRequired{
		X402Version: core.X402Version,
		Accepts:     reqs,
		Error:       reason,
	}
	if out.Accepts == nil {
		out.Accepts = []core.PaymentRequirement{}
	}
	if len(reqs) > 0 {
		out.Resource = reqs[0].Resource
		out.Description = reqs[0].Description
		out.MimeType = reqs[0].MimeType
	}
	return out
}

// AtomicAmount converts a USD price to base units of a token with the given
// decimals, rounding half away from zero.
func AtomicAmount(price decimal.Decimal, decimals int32) (string, error) {
	if price.IsNegative() {
		return "", fmt.Errorf("%w: %s is negative", core.ErrInvalidPrice, price)
	}
	return price.Shift(decimals).Round(0).String(), nil
}

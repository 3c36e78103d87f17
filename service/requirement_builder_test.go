package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/layer-3/tollgate/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const evmPayTo = "0x1111111111111111111111111111111111111111"

func TestAtomicAmount(t *testing.T) {
	for price, want := range map[string]string{
		"0.25":       "250000",
		"1":          "1000000",
		"0":          "0",
		"0.0000005":  "1",
		"0.0000004":  "0",
		"12.3456785": "12345679",
	} {
		got, err := AtomicAmount(decimal.RequireFromString(price), 6)
		require.NoError(t, err, price)
		assert.Equal(t, want, got, price)
	}

	_, err := AtomicAmount(decimal.RequireFromString("-0.01"), 6)
	assert.ErrorIs(t, err, core.ErrInvalidPrice)
}

func TestRequirementBuilder_EVM(t *testing.T) {
	b := NewRequirementBuilder(RequirementConfig{}, nil)

	req, err := b.Build(context.Background(), BuildInput{
		Network:     core.BaseMainnet,
		PriceUSD:    decimal.NewFromFloat(0.25),
		PayTo:       strings.ToLower(evmPayTo),
		Resource:    "https://tollgate.test/articles/1",
		Description: "article",
	})
	require.NoError(t, err)

	assert.Equal(t, core.SchemeExact, req.Scheme)
	assert.Equal(t, "250000", req.Amount)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", req.Asset)
	assert.Equal(t, "USD Coin", req.Extra.Name)
	assert.Equal(t, "2", req.Extra.Version)
	assert.Empty(t, req.Extra.FeePayer)
	assert.Equal(t, DefaultMaxTimeoutSeconds, req.MaxTimeoutSeconds)

	sepolia, err := b.Build(context.Background(), BuildInput{Network: core.BaseSepolia, PriceUSD: decimal.NewFromInt(1), PayTo: evmPayTo})
	require.NoError(t, err)
	assert.Equal(t, "USDC", sepolia.Extra.Name)
}

func TestRequirementBuilder_SolanaFeePayer(t *testing.T) {
	fac := &fakeFacilitator{supported: func(context.Context) ([]core.SupportedKind, error) {
		return supportedKinds("FeePayer111"), nil
	}}
	b := NewRequirementBuilder(RequirementConfig{}, NewCapabilityCache(fac, time.Second, zap.NewNop()))

	payTo := solana.NewWallet().PublicKey().String()
	req, err := b.Build(context.Background(), BuildInput{Network: core.SolanaMainnet, PriceUSD: decimal.NewFromFloat(0.5), PayTo: payTo})
	require.NoError(t, err)
	assert.Equal(t, "FeePayer111", req.Extra.FeePayer)
	assert.Equal(t, "500000", req.Amount)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", req.Asset)
	assert.Empty(t, req.Extra.Name)
}

func TestRequirementBuilder_FacilitatorErrorDistinguished(t *testing.T) {
	fac := &fakeFacilitator{supported: func(context.Context) ([]core.SupportedKind, error) {
		return nil, core.ErrFacilitatorUnavailable
	}}
	b := NewRequirementBuilder(RequirementConfig{}, NewCapabilityCache(fac, time.Second, zap.NewNop()))

	_, err := b.Build(context.Background(), BuildInput{Network: core.SolanaMainnet, PriceUSD: decimal.NewFromInt(1), PayTo: solana.NewWallet().PublicKey().String()})
	assert.ErrorIs(t, err, core.ErrFacilitatorUnavailable)
}

func TestRequirementBuilder_Rejections(t *testing.T) {
	prod := NewRequirementBuilder(RequirementConfig{Production: true}, nil)
	ctx := context.Background()

	_, err := prod.Build(ctx, BuildInput{Network: core.BaseSepolia, PriceUSD: decimal.NewFromInt(1), PayTo: evmPayTo})
	assert.ErrorIs(t, err, core.ErrTestnetNotAllowed)

	_, err = prod.Build(ctx, BuildInput{Network: "eip155:1", PriceUSD: decimal.NewFromInt(1), PayTo: evmPayTo})
	assert.ErrorIs(t, err, core.ErrUnsupportedNetwork)

	_, err = prod.Build(ctx, BuildInput{Network: core.BaseMainnet, PriceUSD: decimal.NewFromInt(1), PayTo: "nope"})
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	_, err = prod.Build(ctx, BuildInput{Network: core.BaseMainnet, PriceUSD: decimal.NewFromInt(-1), PayTo: evmPayTo})
	assert.ErrorIs(t, err, core.ErrInvalidPrice)
}

func TestRequirementBuilder_ResolveNetwork(t *testing.T) {
	dev := NewRequirementBuilder(RequirementConfig{DefaultNetwork: core.BaseSepolia}, nil)
	assert.Equal(t, core.BaseSepolia, dev.ResolveNetwork(""))
	assert.Equal(t, core.PolygonMainnet, dev.ResolveNetwork(core.PolygonMainnet))

	prod := NewRequirementBuilder(RequirementConfig{Production: true, DefaultNetwork: core.BaseSepolia}, nil)
	assert.Equal(t, core.BaseMainnet, prod.ResolveNetwork(""))
}

func TestRequirementBuilder_Envelope(t *testing.T) {
	b := NewRequirementBuilder(RequirementConfig{}, nil)

	env := b.Envelope(nil, "payment required")
	assert.Equal(t, 2, env.X402Version)
	assert.NotNil(t, env.Accepts)
	assert.Equal(t, "payment required", env.Error)

	env = b.Envelope([]core.PaymentRequirement{{Resource: "/a", Description: "d", MimeType: "application/json"}}, "")
	assert.Equal(t, "/a", env.Resource)
	assert.Equal(t, "application/json", env.MimeType)
}

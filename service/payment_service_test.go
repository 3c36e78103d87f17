package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/layer-3/tollgate/adapters/store"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type paymentFixture struct {
	svc   *PaymentService
	fac   *fakeFacilitator
	chain *fakeChain
	ev    *recordingEvents
}

func newPaymentFixture(t *testing.T, production bool) *paymentFixture {
	t.Helper()

	f := &paymentFixture{
		fac: &fakeFacilitator{supported: func(context.Context) ([]core.SupportedKind, error) {
			return supportedKinds("FeePayer111"), nil
		}},
		chain: newFakeChain("FeePayer111"),
		ev:    &recordingEvents{},
	}
	logger := zap.NewNop()
	cache := NewCapabilityCache(f.fac, time.Second, logger)
	builder := NewRequirementBuilder(RequirementConfig{Production: production}, cache)
	atas := NewATAProvisioner(f.chain, store.NewMemoryAtaLog(), f.ev, core.DefaultNetworks(), logger)
	f.svc = NewPaymentService(builder, f.fac, cache, atas, f.ev, logger)
	return f
}

func testOffer(solanaPayee string) Offer {
	return Offer{
		PriceUSD:    decimal.RequireFromString("0.25"),
		PayTo:       map[core.Family]string{core.FamilyEVM: evmPayTo, core.FamilySolana: solanaPayee},
		Resource:    "https://tollgate.test/articles/1",
		Description: "article",
		MimeType:    "application/json",
	}
}

func proofHeader(t *testing.T, network core.Network) string {
	t.Helper()
	data, err := json.Marshal(core.PaymentPayload{
		X402Version: 2,
		Scheme:      core.SchemeExact,
		Network:     network,
		Payload:     json.RawMessage(`{"signature":"0xsig"}`),
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func TestPaymentService_RequirementsDefaults(t *testing.T) {
	f := newPaymentFixture(t, false)
	env, err := f.svc.Requirements(context.Background(), testOffer(solana.NewWallet().PublicKey().String()))
	require.NoError(t, err)

	assert.Equal(t, core.X402Version, env.X402Version)
	assert.Equal(t, "https://tollgate.test/articles/1", env.Resource)
	require.Len(t, env.Accepts, 2)
	assert.Equal(t, core.BaseMainnet, env.Accepts[0].Network)
	assert.Equal(t, core.SolanaDevnet, env.Accepts[1].Network)
	assert.Equal(t, "FeePayer111", env.Accepts[1].Extra.FeePayer)
	for _, req := range env.Accepts {
		assert.Equal(t, "250000", req.Amount)
	}
}

func TestPaymentService_RequirementsSkipsTestnetsInProduction(t *testing.T) {
	f := newPaymentFixture(t, true)
	offer := testOffer(solana.NewWallet().PublicKey().String())

	offer.Networks = []core.Network{core.BaseSepolia, core.BaseMainnet, core.SolanaDevnet}
	env, err := f.svc.Requirements(context.Background(), offer)
	require.NoError(t, err)
	require.Len(t, env.Accepts, 1)
	assert.Equal(t, core.BaseMainnet, env.Accepts[0].Network)

	offer.Networks = []core.Network{core.BaseSepolia}
	_, err = f.svc.Requirements(context.Background(), offer)
	assert.ErrorIs(t, err, core.ErrTestnetNotAllowed)

	offer.Networks = []core.Network{"eip155:1"}
	_, err = f.svc.Requirements(context.Background(), offer)
	assert.ErrorIs(t, err, core.ErrUnsupportedNetwork)
}

func TestPaymentService_SettleEVM(t *testing.T) {
	f := newPaymentFixture(t, false)
	offer := testOffer("")

	receipt, err := f.svc.Settle(context.Background(), offer, proofHeader(t, core.BaseMainnet))
	require.NoError(t, err)

	assert.Equal(t, core.BaseMainnet, receipt.Requirement.Network)
	assert.Equal(t, "tx", receipt.Settlement.Transaction)
	assert.Nil(t, receipt.Ata)
	assert.Equal(t, int32(1), f.fac.verifyCalls.Load())
	assert.Equal(t, int32(1), f.fac.settleCalls.Load())
	require.Len(t, f.ev.settled, 1)
	assert.Zero(t, f.chain.Creates())
}

func TestPaymentService_SettleRawJSONHeader(t *testing.T) {
	f := newPaymentFixture(t, false)
	raw, err := base64.StdEncoding.DecodeString(proofHeader(t, core.BaseMainnet))
	require.NoError(t, err)

	_, err = f.svc.Settle(context.Background(), testOffer(""), string(raw))
	require.NoError(t, err)
}

func TestPaymentService_SettleSolanaProvisionsPayee(t *testing.T) {
	f := newPaymentFixture(t, true)
	payee := solana.NewWallet().PublicKey().String()

	receipt, err := f.svc.Settle(context.Background(), testOffer(payee), proofHeader(t, core.SolanaMainnet))
	require.NoError(t, err)
	require.NotNil(t, receipt.Ata)
	assert.True(t, receipt.Ata.Success)
	assert.Equal(t, 1, f.chain.Creates())
	assert.Equal(t, int32(1), f.fac.settleCalls.Load())
}

func TestPaymentService_AtaFailureBlocksSettlement(t *testing.T) {
	f := newPaymentFixture(t, true)
	f.chain.confirmErr = &ports.ChainTxError{Signature: "sig-1", Reason: "insufficient funds"}

	_, err := f.svc.Settle(context.Background(), testOffer(solana.NewWallet().PublicKey().String()), proofHeader(t, core.SolanaMainnet))
	assert.ErrorIs(t, err, core.ErrAtaCreationFailed)
	assert.Equal(t, int32(1), f.fac.verifyCalls.Load())
	assert.Zero(t, f.fac.settleCalls.Load())
}

func TestPaymentService_SettleRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("undecodable", func(t *testing.T) {
		f := newPaymentFixture(t, false)
		_, err := f.svc.Settle(ctx, testOffer(""), "%%%not a proof")
		assert.ErrorIs(t, err, core.ErrPaymentProofUndecodable)

		_, err = f.svc.Settle(ctx, testOffer(""), base64.StdEncoding.EncodeToString([]byte(`{"scheme":"exact"}`)))
		assert.ErrorIs(t, err, core.ErrPaymentProofUndecodable)
	})

	t.Run("network not offered", func(t *testing.T) {
		f := newPaymentFixture(t, false)
		_, err := f.svc.Settle(ctx, testOffer(""), proofHeader(t, core.PolygonMainnet))
		assert.ErrorIs(t, err, core.ErrNoMatchingRequirement)
		assert.Zero(t, f.fac.verifyCalls.Load())
	})

	t.Run("invalid proof", func(t *testing.T) {
		f := newPaymentFixture(t, false)
		f.fac.verify = func(*core.PaymentPayload, *core.PaymentRequirement) (*core.VerifyResult, error) {
			return &core.VerifyResult{IsValid: false, InvalidReason: "insufficient_funds"}, nil
		}
		_, err := f.svc.Settle(ctx, testOffer(""), proofHeader(t, core.BaseMainnet))
		assert.ErrorIs(t, err, core.ErrPaymentVerificationFailed)
		assert.Contains(t, err.Error(), "insufficient_funds")
		assert.Zero(t, f.fac.settleCalls.Load())
	})

	t.Run("settlement failed", func(t *testing.T) {
		f := newPaymentFixture(t, false)
		f.fac.settle = func(*core.PaymentPayload, *core.PaymentRequirement) (*core.SettleResult, error) {
			return &core.SettleResult{Success: false, ErrorReason: "nonce_used"}, nil
		}
		_, err := f.svc.Settle(ctx, testOffer(""), proofHeader(t, core.BaseMainnet))
		assert.ErrorIs(t, err, core.ErrPaymentSettlementFailed)
		assert.Empty(t, f.ev.settled)
	})
}

func TestPaymentService_OutageInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t, false)
	offer := testOffer(solana.NewWallet().PublicKey().String())

	_, err := f.svc.Requirements(ctx, offer)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.fac.supportedCalls.Load())

	f.fac.verify = func(*core.PaymentPayload, *core.PaymentRequirement) (*core.VerifyResult, error) {
		return nil, core.ErrFacilitatorUnavailable
	}
	_, err = f.svc.Settle(ctx, offer, proofHeader(t, core.BaseMainnet))
	assert.ErrorIs(t, err, core.ErrFacilitatorUnavailable)

	_, err = f.svc.Requirements(ctx, offer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.fac.supportedCalls.Load())
}

func TestPaymentService_RequirementsSurviveFacilitatorOutage(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t, false)
	f.fac.supported = func(context.Context) ([]core.SupportedKind, error) {
		return nil, core.ErrFacilitatorUnavailable
	}
	offer := testOffer(solana.NewWallet().PublicKey().String())

	env, err := f.svc.Requirements(ctx, offer)
	require.NoError(t, err)
	require.Len(t, env.Accepts, 1)
	assert.Equal(t, core.BaseMainnet, env.Accepts[0].Network)

	offer.Networks = []core.Network{core.SolanaDevnet}
	_, err = f.svc.Requirements(ctx, offer)
	assert.ErrorIs(t, err, core.ErrFacilitatorUnavailable)

	// the outage left nothing cached, recovery is picked up on the next call
	f.fac.supported = func(context.Context) ([]core.SupportedKind, error) {
		return supportedKinds("FeePayer111"), nil
	}
	offer.Networks = nil
	env, err = f.svc.Requirements(ctx, offer)
	require.NoError(t, err)
	require.Len(t, env.Accepts, 2)
	assert.Equal(t, "FeePayer111", env.Accepts[1].Extra.FeePayer)
}

func TestDecodePaymentHeader_Accepted(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"x402Version": 2,
		"payload":     map[string]any{"transaction": "AQID"},
		"accepted":    core.PaymentRequirement{Scheme: core.SchemeExact, Network: core.SolanaMainnet},
	})
	require.NoError(t, err)

	payload, err := DecodePaymentHeader(base64.StdEncoding.EncodeToString(data))
	require.NoError(t, err)
	assert.Equal(t, core.SolanaMainnet, payload.Network)
	assert.Equal(t, core.SchemeExact, payload.Scheme)
}

func TestEncodeHeader(t *testing.T) {
	h, err := EncodeHeader(core.SettleResult{Success: true, Transaction: "tx"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"transaction":"tx","network":""}`, string(raw))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/layer-3/tollgate/adapters/svm"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
)

type fakeFacilitator struct {
	supportedCalls atomic.Int32
	verifyCalls    atomic.Int32
	settleCalls    atomic.Int32

	supported func(ctx context.Context) ([]core.SupportedKind, error)
	verify    func(*core.PaymentPayload, *core.PaymentRequirement) (*core.VerifyResult, error)
	settle    func(*core.PaymentPayload, *core.PaymentRequirement) (*core.SettleResult, error)
}

func (f *fakeFacilitator) Supported(ctx context.Context) ([]core.SupportedKind, error) {
	f.supportedCalls.Add(1)
	if f.supported == nil {
		return nil, nil
	}
	return f.supported(ctx)
}

func (f *fakeFacilitator) Verify(_ context.Context, p *core.PaymentPayload, r *core.PaymentRequirement) (*core.VerifyResult, error) {
	f.verifyCalls.Add(1)
	if f.verify == nil {
		return &core.VerifyResult{IsValid: true, Payer: "payer"}, nil
	}
	return f.verify(p, r)
}

func (f *fakeFacilitator) Settle(_ context.Context, p *core.PaymentPayload, r *core.PaymentRequirement) (*core.SettleResult, error) {
	f.settleCalls.Add(1)
	if f.settle == nil {
		return &core.SettleResult{Success: true, Transaction: "tx", Network: r.Network, Payer: "payer"}, nil
	}
	return f.settle(p, r)
}

func supportedKinds(feePayer string) []core.SupportedKind {
	return []core.SupportedKind{
		{X402Version: 2, Scheme: core.SchemeExact, Network: core.BaseMainnet},
		{X402Version: 2, Scheme: core.SchemeExact, Network: core.BaseSepolia},
		{X402Version: 2, Scheme: core.SchemeExact, Network: core.SolanaMainnet, Extra: map[string]any{"feePayer": feePayer}},
		{X402Version: 2, Scheme: core.SchemeExact, Network: core.SolanaDevnet, Extra: map[string]any{"feePayer": feePayer}},
	}
}

// fakeChain simulates ATA state on a single cluster
type fakeChain struct {
	mu       sync.Mutex
	accounts map[string]bool
	pending  map[string]string
	creates  int
	payer    string

	// createErr is returned by the next create; confirmErr by the next confirm
	createErr  error
	confirmErr error
	// landOnFail creates the account even when confirm reports a failure,
	// as when a concurrent transaction won
	landOnFail bool
	beforeSend func()
}

func newFakeChain(payer string) *fakeChain {
	return &fakeChain{accounts: make(map[string]bool), pending: make(map[string]string), payer: payer}
}

func (c *fakeChain) AssociatedTokenAddress(owner, mint string) (string, error) {
	return svm.AssociatedTokenAddress(owner, mint)
}

func (c *fakeChain) AccountExists(_ context.Context, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[address], nil
}

func (c *fakeChain) CreateAssociatedTokenAccount(_ context.Context, owner, mint string) (string, error) {
	if c.beforeSend != nil {
		c.beforeSend()
	}

	ata, err := svm.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.creates++
	if c.createErr != nil {
		err := c.createErr
		c.createErr = nil
		return "", err
	}
	sig := fmt.Sprintf("sig-%d", c.creates)
	c.pending[sig] = ata
	return sig, nil
}

func (c *fakeChain) Confirm(_ context.Context, signature string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ata := c.pending[signature]
	if c.accounts[ata] {
		return 0, &ports.ChainTxError{Signature: signature, Reason: "Allocate: account " + ata + " already in use"}
	}
	if c.confirmErr != nil {
		err := c.confirmErr
		c.confirmErr = nil
		if c.landOnFail {
			c.accounts[ata] = true
		}
		return 0, err
	}
	c.accounts[ata] = true
	return 5000, nil
}

func (c *fakeChain) FeePayer() string { return c.payer }

func (c *fakeChain) Creates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates
}

type recordingEvents struct {
	mu       sync.Mutex
	sessions []*core.Session
	logouts  []string
	atas     []*core.AtaCreation
	settled  []*core.SettleResult
}

func (r *recordingEvents) PublishSessionCreated(_ context.Context, s *core.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *recordingEvents) PublishLogout(_ context.Context, address string, _ ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logouts = append(r.logouts, address)
	return nil
}

func (r *recordingEvents) PublishAtaCreated(_ context.Context, e *core.AtaCreation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.atas = append(r.atas, e)
	return nil
}

func (r *recordingEvents) PublishPaymentSettled(_ context.Context, _ *core.PaymentRequirement, res *core.SettleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, res)
	return nil
}

func (r *recordingEvents) AtaCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.atas)
}

type failingAtaLog struct{}

func (failingAtaLog) Record(context.Context, *core.AtaCreation) (bool, error) {
	return false, errors.New("db down")
}

func (failingAtaLog) Count(context.Context, string, core.Network, string) (int, error) {
	return 0, errors.New("db down")
}

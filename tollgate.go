// Package tollgate exposes wallet sign-in and x402 payments to in-process
// callers that do not go through the HTTP API.
package tollgate

import (
	"context"

	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/service"
)

// Client represents the public interface for interacting with the service
type Client interface {
	// Challenge issues a sign-in nonce for address. network may be empty.
	Challenge(ctx context.Context, address string, network core.Network) (*core.Challenge, error)

	// Login verifies a signed challenge and returns a bearer token for the new session
	Login(ctx context.Context, message, signature, nonce string) (token string, session *core.Session, err error)

	// Authenticate resolves a bearer token to its principal
	Authenticate(ctx context.Context, token string) (*core.Principal, error)

	// Logout revokes the session behind token
	Logout(ctx context.Context, token string) error

	// PaymentRequired builds the 402 envelope for offer
	PaymentRequired(ctx context.Context, offer service.Offer) (*core.PaymentRequired, error)

	// Settle verifies and settles the PAYMENT-SIGNATURE header value against offer
	Settle(ctx context.Context, offer service.Offer, header string) (*service.Receipt, error)
}

type client struct {
	auth     *service.AuthService
	payments *service.PaymentService
}

// New creates a Client over the services. payments may be nil when only
// sign-in is used.
func New(auth *service.AuthService, payments *service.PaymentService) Client {
	return &client{auth: auth, payments: payments}
}

func (c *client) Challenge(ctx context.Context, address string, network core.Network) (*core.Challenge, error) {
	return c.auth.RequestNonce(ctx, address, network)
}

func (c *client) Login(ctx context.Context, message, signature, nonce string) (string, *core.Session, error) {
	return c.auth.Verify(ctx, service.VerifyRequest{
		Message:   message,
		Signature: signature,
		Nonce:     nonce,
	})
}

func (c *client) Authenticate(ctx context.Context, token string) (*core.Principal, error) {
	return c.auth.RequireAuth(ctx, token)
}

func (c *client) Logout(ctx context.Context, token string) error {
	principal, err := c.auth.RequireAuth(ctx, token)
	if err != nil {
		return err
	}
	return c.auth.Logout(ctx, principal)
}

func (c *client) PaymentRequired(ctx context.Context, offer service.Offer) (*core.PaymentRequired, error) {
	if c.payments == nil {
		return nil, core.ErrUnsupportedNetwork
	}
	return c.payments.Requirements(ctx, offer)
}

func (c *client) Settle(ctx context.Context, offer service.Offer, header string) (*service.Receipt, error) {
	if c.payments == nil {
		return nil, core.ErrUnsupportedNetwork
	}
	return c.payments.Settle(ctx, offer, header)
}

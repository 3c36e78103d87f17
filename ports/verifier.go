package ports

import (
	"context"

	"github.com/layer-3/tollgate/core"
)

// VerifyInput is a signed login message together with the challenge it answers
type VerifyInput struct {
	Message   string
	Signature string
	Record    *core.NonceRecord
}

// Verified is a successful signature check
type Verified struct {
	Address string       // normalized signer address
	Network core.Network // payout network resolved from the message
}

// SignatureVerifier checks a signed challenge for one network family
type SignatureVerifier interface {
	Family() core.Family
	Verify(ctx context.Context, in VerifyInput) (*Verified, error)
}

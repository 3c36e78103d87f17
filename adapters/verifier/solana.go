package verifier

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
)

// Solana verifies detached Ed25519 signatures over a UTF-8 message
type Solana struct{}

// NewSolana creates a Solana verifier
func NewSolana() *Solana { return &Solana{} }

func (v *Solana) Family() core.Family { return core.FamilySolana }

// Verify checks that the message embeds the nonce and was signed by the
// wallet the challenge was issued to
func (v *Solana) Verify(ctx context.Context, in ports.VerifyInput) (*ports.Verified, error) {
	if !strings.Contains(in.Message, in.Record.Nonce) {
		return nil, core.ErrNonceMismatch
	}

	pub, err := solana.PublicKeyFromBase58(in.Record.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	sig, err := decodeSolanaSignature(in.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	if !sig.Verify(pub, []byte(in.Message)) {
		return nil, core.ErrInvalidSignature
	}

	return &ports.Verified{Address: pub.String(), Network: in.Record.Network}, nil
}

// decodeSolanaSignature accepts base58 (wallet adapters), base64 or hex
func decodeSolanaSignature(s string) (solana.Signature, error) {
	s = strings.TrimSpace(s)

	if sig, err := solana.SignatureFromBase58(s); err == nil {
		return sig, nil
	}

	var raw []byte
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == solana.SignatureLength {
		raw = b
	} else if b, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil && len(b) == solana.SignatureLength {
		raw = b
	} else {
		return solana.Signature{}, fmt.Errorf("signature is not a %d byte base58, base64 or hex string", solana.SignatureLength)
	}

	return solana.SignatureFromBytes(raw), nil
}

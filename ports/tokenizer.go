package ports

import "github.com/layer-3/tollgate/core"

// Tokenizer converts between sessions and bearer tokens
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	// TokenToClaims validates signature and expiry, failing with core.ErrInvalidToken
	TokenToClaims(token string) (*core.TokenClaims, error)
}

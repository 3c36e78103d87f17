package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with session-specific ones.
// Subject carries the normalized wallet address and ID the session id.
type SessionClaims struct {
	jwt.RegisteredClaims
	AuthorID string `json:"aid,omitempty"`
	Network  string `json:"net"`
}

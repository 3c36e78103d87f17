package core

import (
	"time"

	"github.com/google/uuid"
)

// NonceRecord is an outstanding login challenge
type NonceRecord struct {
	Nonce         string    `json:"nonce"`
	WalletAddress string    `json:"wallet_address"` // normalized for Network's family
	AuthorID      *string   `json:"author_id,omitempty"`
	Network       Network   `json:"network"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at t
func (r *NonceRecord) Expired(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// Challenge is what a client needs to build the message its wallet signs
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Address   string    `json:"address"`
	Network   Network   `json:"network"`
	ChainID   int64     `json:"chainId,omitempty"`
	Domain    string    `json:"domain"`
	URI       string    `json:"uri"`
	Statement string    `json:"statement"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Session represents an authenticated wallet session
type Session struct {
	ID             uuid.UUID `json:"id"`
	WalletAddress  string    `json:"walletAddress"`
	AuthorID       *string   `json:"authorId,omitempty"`
	Network        Network   `json:"network"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Revoked        bool      `json:"revoked"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	UserAgent      string    `json:"userAgent,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Active reports whether the session can still authenticate requests at t
func (s *Session) Active(t time.Time) bool {
	return !s.Revoked && t.Before(s.ExpiresAt)
}

// TokenClaims is the payload carried by a bearer token
type TokenClaims struct {
	SessionID uuid.UUID
	Address   string
	AuthorID  *string
	Network   Network
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal is the authenticated caller of a protected request
type Principal struct {
	SessionID uuid.UUID `json:"sessionId"`
	Address   string    `json:"address"`
	AuthorID  *string   `json:"authorId,omitempty"`
	Network   Network   `json:"network"`
	Family    Family    `json:"family"`
}

// LinkedWallet is a wallet attached to an author
type LinkedWallet struct {
	Address   string  `json:"address"`
	Network   Network `json:"network"`
	IsPrimary bool    `json:"isPrimary"`
}

// AuthorIdentity is the author account a wallet resolves to
type AuthorIdentity struct {
	AuthorID             string         `json:"authorId"`
	PrimaryPayoutAddress string         `json:"primaryPayoutAddress"`
	PrimaryPayoutNetwork Network        `json:"primaryPayoutNetwork"`
	LinkedWallets        []LinkedWallet `json:"linkedWallets"`
}

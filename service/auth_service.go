package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"go.uber.org/zap"
)

// AuthConfig holds the knobs of the wallet login flow
type AuthConfig struct {
	NonceTTL   time.Duration
	SessionTTL time.Duration
	Domain     string
	URI        string
	Statement  string
	// Production rejects testnet logins by falling back to the family default
	Production           bool
	DefaultEVMNetwork    core.Network
	DefaultSolanaNetwork core.Network
	Networks             core.NetworkTable
}

func (c *AuthConfig) setDefaults() {
	if c.NonceTTL <= 0 {
		c.NonceTTL = 5 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	if c.Statement == "" {
		c.Statement = "Sign in with your wallet"
	}
	if c.Networks == nil {
		c.Networks = core.DefaultNetworks()
	}
	if c.DefaultEVMNetwork == "" {
		c.DefaultEVMNetwork = core.BaseMainnet
	}
	if c.DefaultSolanaNetwork == "" {
		c.DefaultSolanaNetwork = core.SolanaMainnet
	}
}

// VerifyRequest is a signed challenge submitted by a wallet
type VerifyRequest struct {
	Message   string
	Signature string
	Nonce     string // optional for EVM, parsed from the message
	UserAgent string
	IPAddress string
}

// AuthService handles authentication business logic
type AuthService struct {
	cfg        AuthConfig
	nonces     ports.NonceStore
	sessions   ports.SessionStore
	identities ports.IdentityStore
	tokenizer  ports.Tokenizer
	eventPub   ports.EventPublisher
	verifiers  map[core.Family]ports.SignatureVerifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	cfg AuthConfig,
	nonces ports.NonceStore,
	sessions ports.SessionStore,
	identities ports.IdentityStore,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
	verifiers ...ports.SignatureVerifier,
) *AuthService {
	cfg.setDefaults()

	byFamily := make(map[core.Family]ports.SignatureVerifier, len(verifiers))
	for _, v := range verifiers {
		byFamily[v.Family()] = v
	}

	return &AuthService{
		cfg:        cfg,
		nonces:     nonces,
		sessions:   sessions,
		identities: identities,
		tokenizer:  tokenizer,
		eventPub:   eventPub,
		verifiers:  byFamily,
		logger:     logger,
		now:        time.Now,
	}
}

// RequestNonce issues a login challenge bound to address on the resolved network
func (s *AuthService) RequestNonce(ctx context.Context, address string, network core.Network) (*core.Challenge, error) {
	info, err := s.resolveNetwork(address, network)
	if err != nil {
		return nil, err
	}

	normalized, err := core.NormalizeAddress(address, info.Family())
	if err != nil {
		return nil, err
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	var authorID *string
	identity, err := s.identities.FindByWallet(ctx, normalized)
	switch {
	case err == nil:
		authorID = &identity.AuthorID
	case !errors.Is(err, core.ErrIdentityNotFound):
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	now := s.now()
	record := &core.NonceRecord{
		Nonce:         hex.EncodeToString(nonceBytes),
		WalletAddress: normalized,
		AuthorID:      authorID,
		Network:       info.ID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.cfg.NonceTTL),
	}
	if err := s.nonces.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}

	return &core.Challenge{
		Nonce:     record.Nonce,
		Address:   normalized,
		Network:   info.ID,
		ChainID:   info.ChainID,
		Domain:    s.cfg.Domain,
		URI:       s.cfg.URI,
		Statement: s.cfg.Statement,
		IssuedAt:  record.IssuedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// resolveNetwork picks the network a challenge is bound to. A supported
// requested network wins, otherwise the family default for the address shape.
func (s *AuthService) resolveNetwork(address string, requested core.Network) (core.NetworkInfo, error) {
	if info, ok := s.cfg.Networks.Lookup(requested); ok {
		if !(s.cfg.Production && info.Testnet) {
			return info, nil
		}
		return s.familyDefault(info.Family())
	}

	family, ok := core.DetectFamily(address)
	if !ok {
		return core.NetworkInfo{}, core.ErrInvalidAddress
	}
	return s.familyDefault(family)
}

func (s *AuthService) familyDefault(family core.Family) (core.NetworkInfo, error) {
	id := s.cfg.DefaultEVMNetwork
	if family == core.FamilySolana {
		id = s.cfg.DefaultSolanaNetwork
	}
	info, ok := s.cfg.Networks.Lookup(id)
	if !ok {
		return core.NetworkInfo{}, fmt.Errorf("%w: no default %s network", core.ErrUnsupportedNetwork, family)
	}
	return info, nil
}

// Verify checks a signed challenge and opens a session. It returns the
// bearer token and the stored session.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (string, *core.Session, error) {
	nonce := req.Nonce
	if nonce == "" {
		var ok bool
		if nonce, ok = core.ExtractNonce(req.Message); !ok {
			return "", nil, core.ErrNonceMissing
		}
	}

	record, err := s.nonces.Get(ctx, nonce)
	if err != nil {
		return "", nil, err
	}

	if record.Expired(s.now()) {
		if err := s.nonces.Expire(ctx, nonce); err != nil {
			s.logger.Warn("failed to expire nonce", zap.Error(err))
		}
		return "", nil, core.ErrNonceExpired
	}

	family := record.Network.Family()
	verifier, ok := s.verifiers[family]
	if !ok {
		return "", nil, fmt.Errorf("%w: no verifier for %q", core.ErrUnsupportedNetwork, family)
	}

	// a failed check leaves the nonce in place for a corrected attempt
	verified, err := verifier.Verify(ctx, ports.VerifyInput{
		Message:   req.Message,
		Signature: req.Signature,
		Record:    record,
	})
	if err != nil {
		return "", nil, err
	}

	if _, err := s.nonces.Consume(ctx, nonce); err != nil {
		return "", nil, err
	}

	identity, err := s.resolveIdentity(ctx, verified)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	session := &core.Session{
		ID:             uuid.New(),
		WalletAddress:  verified.Address,
		AuthorID:       &identity.AuthorID,
		Network:        verified.Network,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
		UserAgent:      req.UserAgent,
		IPAddress:      req.IPAddress,
		CreatedAt:      now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create token: %w", err)
	}

	if err := s.eventPub.PublishSessionCreated(ctx, session); err != nil {
		s.logger.Warn("failed to publish session event", zap.String("session_id", session.ID.String()), zap.Error(err))
	}

	s.logger.Info("wallet signed in",
		zap.String("address", session.WalletAddress),
		zap.String("network", session.Network.String()),
		zap.String("session_id", session.ID.String()),
	)

	return token, session, nil
}

func (s *AuthService) resolveIdentity(ctx context.Context, verified *ports.Verified) (*core.AuthorIdentity, error) {
	identity, err := s.identities.FindByWallet(ctx, verified.Address)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, core.ErrIdentityNotFound) {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	identity, err = s.identities.Create(ctx, verified.Address, verified.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return identity, nil
}

// RequireAuth resolves a bearer token to the principal it authenticates
func (s *AuthService) RequireAuth(ctx context.Context, token string) (*core.Principal, error) {
	claims, err := s.tokenizer.TokenToClaims(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !session.Active(now) {
		return nil, core.ErrSessionExpired
	}

	family := session.Network.Family()
	if !core.SameAddress(claims.Address, session.WalletAddress, family) {
		return nil, core.ErrSessionMismatch
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		s.logger.Warn("failed to touch session", zap.String("session_id", session.ID.String()), zap.Error(err))
	}

	return &core.Principal{
		SessionID: session.ID,
		Address:   session.WalletAddress,
		AuthorID:  session.AuthorID,
		Network:   session.Network,
		Family:    family,
	}, nil
}

// Session returns the stored session of an authenticated principal
func (s *AuthService) Session(ctx context.Context, principal *core.Principal) (*core.Session, error) {
	return s.sessions.Get(ctx, principal.SessionID)
}

// Logout revokes a single session
func (s *AuthService) Logout(ctx context.Context, principal *core.Principal) error {
	if err := s.sessions.Revoke(ctx, principal.SessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if err := s.eventPub.PublishLogout(ctx, principal.Address, principal.SessionID.String()); err != nil {
		s.logger.Warn("failed to publish logout event", zap.Error(err))
	}
	return nil
}

// LogoutAll revokes every session of the principal's wallet
func (s *AuthService) LogoutAll(ctx context.Context, principal *core.Principal) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, principal.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}

	if err := s.eventPub.PublishLogout(ctx, principal.Address); err != nil {
		s.logger.Warn("failed to publish logout event", zap.Error(err))
	}
	return n, nil
}
